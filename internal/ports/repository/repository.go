package repository

import (
	"context"
	"errors"

	"checkin.engine/internal/core/model"
)

var (
	// ErrDuplicateRecord is returned when a second record for the same (user, date) is written.
	ErrDuplicateRecord = errors.New("attendance record already exists for user and date")
	ErrNotFound        = errors.New("record not found")
)

// AttendanceStore persists attendance records. Implementations must enforce
// one record per (user, date) and report violations as ErrDuplicateRecord.
type AttendanceStore interface {
	GetState(ctx context.Context, userID, date string) (model.AttendanceState, error)
	// GetRecord returns nil, nil when the user has no record for date.
	GetRecord(ctx context.Context, userID, date string) (*model.AttendanceRecord, error)
	CreateClockIn(ctx context.Context, record model.AttendanceRecord) (string, error)
	UpdateClockOut(ctx context.Context, id string, fields model.ClockOutFields) error
}

// SyncStore tracks forwarding of records to the legacy attendance system.
type SyncStore interface {
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus, retryCount int) error
}

// EnrollmentStore returns the user's active enrollment, or nil, nil when there is none.
type EnrollmentStore interface {
	GetActiveEnrollment(ctx context.Context, userID string) (*model.EnrollmentRecord, error)
}

type GeofenceStore interface {
	ListActiveZones(ctx context.Context) ([]model.GeofenceZone, error)
}

// ScheduleStore returns the explicit schedule for (user, date), or nil, nil.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, userID, date string) (*model.ShiftSchedule, error)
}
