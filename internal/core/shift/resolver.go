package shift

import (
	"context"
	"fmt"

	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports/repository"
)

// Resolver resolves the schedule for a (user, date), falling back to defaults.
type Resolver struct {
	store    repository.ScheduleStore
	defaults model.ShiftSchedule
}

// NewResolver creates a resolver. store may be nil, in which case every
// lookup resolves to defaults.
func NewResolver(store repository.ScheduleStore, defaults model.ShiftSchedule) *Resolver {
	return &Resolver{store: store, defaults: defaults}
}

func (r *Resolver) ResolveSchedule(ctx context.Context, userID, date string) (model.ShiftSchedule, error) {
	resolved := r.defaults
	resolved.Date = date

	if r.store == nil {
		return resolved, nil
	}

	s, err := r.store.GetSchedule(ctx, userID, date)
	if err != nil {
		return model.ShiftSchedule{}, fmt.Errorf("failed to load schedule: %w", err)
	}
	if s == nil {
		return resolved, nil
	}

	resolved.StartTime = s.StartTime
	resolved.EndTime = s.EndTime
	resolved.IsDayOff = s.IsDayOff
	if s.ToleranceMinutes >= 0 {
		resolved.ToleranceMinutes = s.ToleranceMinutes
	}
	if s.ClockInAdvanceMinutes >= 0 {
		resolved.ClockInAdvanceMinutes = s.ClockInAdvanceMinutes
	}
	return resolved, nil
}
