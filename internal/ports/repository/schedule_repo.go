package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin.engine/internal/core/model"
)

type ScheduleRepository struct {
	DB *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{DB: db}
}

// GetSchedule prefers a dated row for (user, date) over the user's standing
// schedule (work_date NULL). Unset minute columns come back as -1.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, userID, date string) (*model.ShiftSchedule, error) {
	query := `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       COALESCE(tolerance_minutes, -1), COALESCE(clock_in_advance_minutes, -1), is_day_off
		FROM shift_schedules
		WHERE user_id = $1 AND (work_date = $2 OR work_date IS NULL)
		ORDER BY work_date NULLS LAST
		LIMIT 1
	`

	var (
		s          model.ShiftSchedule
		start, end string
	)
	err := r.DB.QueryRowContext(ctx, query, userID, date).Scan(&start, &end, &s.ToleranceMinutes, &s.ClockInAdvanceMinutes, &s.IsDayOff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}

	if s.StartTime, err = model.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if s.EndTime, err = model.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	s.Date = date
	return &s, nil
}
