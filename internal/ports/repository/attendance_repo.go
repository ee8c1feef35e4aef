package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkin.engine/internal/core/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const uniqueViolation = "23505"

// AttendanceRepository is the PostgreSQL implementation of AttendanceStore and SyncStore.
type AttendanceRepository struct {
	DB *sql.DB
}

func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

const recordColumns = `id, user_id, work_date, clock_in_at, clock_in_location, clock_in_score,
	clock_out_at, clock_out_location, is_late, late_minutes, work_minutes, sync_status, sync_retry_count`

func (r *AttendanceRepository) GetState(ctx context.Context, userID, date string) (model.AttendanceState, error) {
	rec, err := r.GetRecord(ctx, userID, date)
	if err != nil {
		return "", err
	}
	return rec.State(), nil
}

// GetRecord returns the (user, date) record or nil when none exists.
func (r *AttendanceRepository) GetRecord(ctx context.Context, userID, date string) (*model.AttendanceRecord, error) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("app.user_id", userID),
		attribute.String("app.work_date", date),
	)

	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE user_id = $1 AND work_date = $2`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance record: %w", err)
	}
	return rec, nil
}

// GetByID fetches a complete record for the sync worker.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE id = $1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance record %s: %w", id, err)
	}
	return rec, nil
}

// CreateClockIn inserts the record. The (user_id, work_date) unique index turns
// a concurrent second insert into ErrDuplicateRecord.
func (r *AttendanceRepository) CreateClockIn(ctx context.Context, record model.AttendanceRecord) (string, error) {
	if record.ClockIn == nil {
		return "", errors.New("clock-in record without clock-in")
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.user_id", record.UserID))

	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	location, err := marshalLocation(record.ClockIn.Location)
	if err != nil {
		return "", err
	}

	query := `INSERT INTO attendance_records
              (id, user_id, work_date, clock_in_at, clock_in_location, clock_in_score, is_late, late_minutes, sync_status, sync_retry_count)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`

	_, err = r.DB.ExecContext(ctx, query,
		id, record.UserID, record.Date, record.ClockIn.At, location, record.ClockIn.Score,
		record.IsLate, record.LateMinutes, model.SyncPending,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrDuplicateRecord
		}
		return "", fmt.Errorf("insert clock-in: %w", err)
	}
	return id, nil
}

// UpdateClockOut closes an open record. A record that is missing or already
// closed yields ErrNotFound.
func (r *AttendanceRepository) UpdateClockOut(ctx context.Context, id string, fields model.ClockOutFields) error {
	location, err := marshalLocation(fields.ClockOut.Location)
	if err != nil {
		return err
	}

	query := `UPDATE attendance_records
              SET clock_out_at = $1,
                  clock_out_location = $2,
                  work_minutes = $3,
                  sync_status = $4
              WHERE id = $5 AND clock_out_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, fields.ClockOut.At, location, fields.WorkMinutes, model.SyncPending, id)
	if err != nil {
		return fmt.Errorf("update clock-out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no open record %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateSyncStatus updates the forwarding status and retry count.
func (r *AttendanceRepository) UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus, retryCount int) error {
	query := `UPDATE attendance_records SET sync_status = $1, sync_retry_count = $2 WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AttendanceRecord, error) {
	var (
		rec         model.AttendanceRecord
		workDate    time.Time
		clockInAt   sql.NullTime
		inLocation  []byte
		score       sql.NullFloat64
		clockOutAt  sql.NullTime
		outLocation []byte
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &workDate, &clockInAt, &inLocation, &score,
		&clockOutAt, &outLocation, &rec.IsLate, &rec.LateMinutes, &rec.WorkMinutes,
		&rec.SyncStatus, &rec.SyncRetryCount,
	)
	if err != nil {
		return nil, err
	}

	rec.Date = workDate.Format(model.DateLayout)
	if clockInAt.Valid {
		loc, err := unmarshalLocation(inLocation)
		if err != nil {
			return nil, err
		}
		rec.ClockIn = &model.ClockIn{At: clockInAt.Time, Location: loc, Score: score.Float64}
	}
	if clockOutAt.Valid {
		loc, err := unmarshalLocation(outLocation)
		if err != nil {
			return nil, err
		}
		rec.ClockOut = &model.ClockOut{At: clockOutAt.Time, Location: loc}
	}
	return &rec, nil
}

func marshalLocation(s *model.LocationSample) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}
	return b, nil
}

func unmarshalLocation(b []byte) (*model.LocationSample, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var s model.LocationSample
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	return &s, nil
}
