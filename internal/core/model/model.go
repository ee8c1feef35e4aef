package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day key format used for (user, date) records.
const DateLayout = "2006-01-02"

// DefaultZoneRadiusMeters applies to zones stored without an explicit radius.
const DefaultZoneRadiusMeters = 100.0

// AttendanceState is the per-(user, date) check-in state.
type AttendanceState string

const (
	StateNotStarted AttendanceState = "NOT_STARTED"
	StateClockedIn  AttendanceState = "CLOCKED_IN"
	StateClockedOut AttendanceState = "CLOCKED_OUT"
)

// SyncStatus defines the state of forwarding a record to the legacy attendance system.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncProcessing SyncStatus = "PROCESSING"
	SyncCompleted  SyncStatus = "COMPLETED"
	SyncFailed     SyncStatus = "FAILED"
)

// LocationMode selects the geofence policy applied to a location sample.
type LocationMode string

const (
	ModeOnSite LocationMode = "onsite"
	ModeRemote LocationMode = "remote"
)

// ParseLocationMode accepts "onsite" or "remote"; an empty string yields fallback.
func ParseLocationMode(s string, fallback LocationMode) (LocationMode, error) {
	switch LocationMode(s) {
	case "":
		return fallback, nil
	case ModeOnSite, ModeRemote:
		return LocationMode(s), nil
	}
	return "", fmt.Errorf("unknown location mode %q", s)
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample is a single fix reported by the platform. It is never mutated after capture.
type LocationSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracyMeters"`
	IsMocked       bool      `json:"isMocked"`
	CapturedAt     time.Time `json:"capturedAt"`
}

func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

type GeofenceZone struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	CenterLatitude  float64 `json:"centerLatitude"`
	CenterLongitude float64 `json:"centerLongitude"`
	RadiusMeters    float64 `json:"radiusMeters"`
}

func (z GeofenceZone) Center() Coordinate {
	return Coordinate{Latitude: z.CenterLatitude, Longitude: z.CenterLongitude}
}

// Radius returns the configured radius, falling back to DefaultZoneRadiusMeters.
func (z GeofenceZone) Radius() float64 {
	if z.RadiusMeters <= 0 {
		return DefaultZoneRadiusMeters
	}
	return z.RadiusMeters
}

// FaceDescriptor is an L2-normalized embedding produced by a single extraction model.
type FaceDescriptor []float32

// EnrollmentRecord binds a user to the descriptor they enrolled with.
type EnrollmentRecord struct {
	UserID       string         `json:"userId"`
	Descriptor   FaceDescriptor `json:"descriptor"`
	ModelVersion string         `json:"modelVersion,omitempty"`
	Active       bool           `json:"active"`
	EnrolledAt   time.Time      `json:"enrolledAt"`
}

// ClockIn is the check-in half of an attendance record.
type ClockIn struct {
	At       time.Time       `json:"at"`
	Location *LocationSample `json:"location,omitempty"`
	Score    float64         `json:"score"`
}

type ClockOut struct {
	At       time.Time       `json:"at"`
	Location *LocationSample `json:"location,omitempty"`
}

// AttendanceRecord is the single record kept per (user, date).
type AttendanceRecord struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Date           string     `json:"date"`
	ClockIn        *ClockIn   `json:"clockIn,omitempty"`
	ClockOut       *ClockOut  `json:"clockOut,omitempty"`
	IsLate         bool       `json:"isLate"`
	LateMinutes    int        `json:"lateMinutes"`
	WorkMinutes    int        `json:"workMinutes"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	SyncRetryCount int        `json:"syncRetryCount"`
}

// State derives the state machine position from which halves are present.
func (r *AttendanceRecord) State() AttendanceState {
	switch {
	case r == nil || r.ClockIn == nil:
		return StateNotStarted
	case r.ClockOut == nil:
		return StateClockedIn
	default:
		return StateClockedOut
	}
}

// ClockOutFields are the values written by a successful check-out.
type ClockOutFields struct {
	ClockOut    ClockOut `json:"clockOut"`
	WorkMinutes int      `json:"workMinutes"`
}
