package model

import "time"

// ReasonCode identifies the outcome of a verification attempt.
type ReasonCode string

const (
	ReasonAccepted           ReasonCode = "ACCEPTED"
	ReasonAlreadyClockedIn   ReasonCode = "ALREADY_CLOCKED_IN"
	ReasonNotClockedIn       ReasonCode = "NOT_CLOCKED_IN"
	ReasonDayOff             ReasonCode = "DAY_OFF"
	ReasonTooEarly           ReasonCode = "TOO_EARLY"
	ReasonTooEarlyClockOut   ReasonCode = "TOO_EARLY_CLOCK_OUT"
	ReasonEnrollmentMissing  ReasonCode = "ENROLLMENT_MISSING"
	ReasonNoFaceDetected     ReasonCode = "NO_FACE_DETECTED"
	ReasonExtractionFailed   ReasonCode = "EXTRACTION_FAILED"
	ReasonNoMatch            ReasonCode = "NO_MATCH"
	ReasonLocationPending    ReasonCode = "LOCATION_PENDING"
	ReasonLocationSpoofed    ReasonCode = "LOCATION_SPOOFED"
	ReasonZoneNotConfigured  ReasonCode = "ZONE_NOT_CONFIGURED"
	ReasonOutOfRange         ReasonCode = "OUT_OF_RANGE"
	ReasonAcquisitionTimeout ReasonCode = "ACQUISITION_TIMEOUT"
	ReasonSystemError        ReasonCode = "SYSTEM_ERROR"
)

// Retryable reports whether the same attempt may succeed if simply repeated.
func (r ReasonCode) Retryable() bool {
	switch r {
	case ReasonLocationPending, ReasonAcquisitionTimeout, ReasonSystemError:
		return true
	}
	return false
}

// VerificationDecision is the single result of a check-in or check-out attempt.
// Optional fields are only set when the gate that produced them ran.
type VerificationDecision struct {
	Accepted          bool            `json:"accepted"`
	Reason            ReasonCode      `json:"reasonCode"`
	Retryable         bool            `json:"retryable"`
	RequiresOverride  bool            `json:"requiresOverride,omitempty"`
	State             AttendanceState `json:"state,omitempty"`
	RecordID          string          `json:"recordId,omitempty"`
	Score             *float64        `json:"score,omitempty"`
	Threshold         *float64        `json:"threshold,omitempty"`
	DistanceMeters    *float64        `json:"distanceMeters,omitempty"`
	MaxDistanceMeters *float64        `json:"maxDistanceMeters,omitempty"`
	ZoneID            string          `json:"zoneId,omitempty"`
	EarliestAllowed   *time.Time      `json:"earliestAllowed,omitempty"`
	IsLate            *bool           `json:"isLate,omitempty"`
	LateMinutes       *int            `json:"lateMinutes,omitempty"`
	WorkMinutes       *int            `json:"workMinutes,omitempty"`
	Cause             string          `json:"cause,omitempty"`
}

// Reject builds a rejection for reason while the record stays in state.
func Reject(reason ReasonCode, state AttendanceState) VerificationDecision {
	return VerificationDecision{
		Reason:    reason,
		Retryable: reason.Retryable(),
		State:     state,
	}
}

// Accept builds an accepted decision that moved the record to state.
func Accept(state AttendanceState) VerificationDecision {
	return VerificationDecision{Accepted: true, Reason: ReasonAccepted, State: state}
}

// SystemError wraps an infrastructure fault. The cause is surfaced verbatim.
func SystemError(state AttendanceState, err error) VerificationDecision {
	d := Reject(ReasonSystemError, state)
	if err != nil {
		d.Cause = err.Error()
	}
	return d
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Bool(v bool) *bool        { return &v }
func Time(v time.Time) *time.Time {
	return &v
}
