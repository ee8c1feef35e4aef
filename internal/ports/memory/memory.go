// Package memory provides in-process implementations of the repository
// interfaces. The CLI harness runs on them and tests use them with error injection.
package memory

import (
	"context"
	"fmt"
	"sync"

	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports/repository"
	"github.com/google/uuid"
)

// AttendanceStore keeps one record per (user, date).
type AttendanceStore struct {
	mu      sync.RWMutex
	byKey   map[string]*model.AttendanceRecord
	byID    map[string]*model.AttendanceRecord
	creates int

	// Error injection
	GetError    error
	CreateError error
	UpdateError error
}

func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{
		byKey: make(map[string]*model.AttendanceRecord),
		byID:  make(map[string]*model.AttendanceRecord),
	}
}

func key(userID, date string) string { return userID + "|" + date }

// Put seeds a record, replacing any existing one for the same (user, date).
func (s *AttendanceStore) Put(rec model.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r := cloneRecord(&rec)
	s.byKey[key(rec.UserID, rec.Date)] = r
	s.byID[rec.ID] = r
}

func (s *AttendanceStore) GetState(ctx context.Context, userID, date string) (model.AttendanceState, error) {
	rec, err := s.GetRecord(ctx, userID, date)
	if err != nil {
		return "", err
	}
	return rec.State(), nil
}

func (s *AttendanceStore) GetRecord(_ context.Context, userID, date string) (*model.AttendanceRecord, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecord(s.byKey[key(userID, date)]), nil
}

func (s *AttendanceStore) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *AttendanceStore) CreateClockIn(_ context.Context, record model.AttendanceRecord) (string, error) {
	if s.CreateError != nil {
		return "", s.CreateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(record.UserID, record.Date)
	if _, exists := s.byKey[k]; exists {
		return "", repository.ErrDuplicateRecord
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.SyncStatus = model.SyncPending
	r := cloneRecord(&record)
	s.byKey[k] = r
	s.byID[r.ID] = r
	s.creates++
	return r.ID, nil
}

func (s *AttendanceStore) UpdateClockOut(_ context.Context, id string, fields model.ClockOutFields) error {
	if s.UpdateError != nil {
		return s.UpdateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || rec.ClockOut != nil {
		return fmt.Errorf("no open record %s: %w", id, repository.ErrNotFound)
	}
	out := fields.ClockOut
	rec.ClockOut = &out
	rec.WorkMinutes = fields.WorkMinutes
	rec.SyncStatus = model.SyncPending
	return nil
}

func (s *AttendanceStore) UpdateSyncStatus(_ context.Context, id string, status model.SyncStatus, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.SyncStatus = status
	rec.SyncRetryCount = retryCount
	return nil
}

// Creates reports how many clock-in records were successfully inserted.
func (s *AttendanceStore) Creates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creates
}

func cloneRecord(r *model.AttendanceRecord) *model.AttendanceRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ClockIn != nil {
		in := *r.ClockIn
		c.ClockIn = &in
	}
	if r.ClockOut != nil {
		out := *r.ClockOut
		c.ClockOut = &out
	}
	return &c
}

// EnrollmentStore holds at most one active enrollment per user.
type EnrollmentStore struct {
	mu          sync.RWMutex
	enrollments map[string]model.EnrollmentRecord

	GetError error
}

func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{enrollments: make(map[string]model.EnrollmentRecord)}
}

func (s *EnrollmentStore) Put(rec model.EnrollmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[rec.UserID] = rec
}

func (s *EnrollmentStore) GetActiveEnrollment(_ context.Context, userID string) (*model.EnrollmentRecord, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.enrollments[userID]
	if !ok || !rec.Active {
		return nil, nil
	}
	rec.Descriptor = append(model.FaceDescriptor(nil), rec.Descriptor...)
	return &rec, nil
}

type ZoneStore struct {
	mu    sync.RWMutex
	zones []model.GeofenceZone

	ListError error
}

func NewZoneStore(zones ...model.GeofenceZone) *ZoneStore {
	return &ZoneStore{zones: zones}
}

func (s *ZoneStore) Add(z model.GeofenceZone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones = append(s.zones, z)
}

func (s *ZoneStore) ListActiveZones(_ context.Context) ([]model.GeofenceZone, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.GeofenceZone(nil), s.zones...), nil
}

// ScheduleStore holds explicit schedules keyed by (user, date).
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]model.ShiftSchedule

	GetError error
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[string]model.ShiftSchedule)}
}

func (s *ScheduleStore) Put(userID string, sched model.ShiftSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[key(userID, sched.Date)] = sched
}

func (s *ScheduleStore) GetSchedule(_ context.Context, userID, date string) (*model.ShiftSchedule, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[key(userID, date)]
	if !ok {
		return nil, nil
	}
	return &sched, nil
}

var (
	_ repository.AttendanceStore = (*AttendanceStore)(nil)
	_ repository.SyncStore       = (*AttendanceStore)(nil)
	_ repository.EnrollmentStore = (*EnrollmentStore)(nil)
	_ repository.GeofenceStore   = (*ZoneStore)(nil)
	_ repository.ScheduleStore   = (*ScheduleStore)(nil)
)
