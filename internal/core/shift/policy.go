// Package shift classifies check-in and check-out timestamps against a work schedule.
package shift

import (
	"time"

	"checkin.engine/internal/core/model"
)

const (
	DefaultToleranceMinutes    = 15
	DefaultAdvanceMinutes      = 30
	DefaultEarlyClockOutWindow = 60 * time.Minute
)

// DefaultSchedule is used for any (user, date) without an explicit schedule.
func DefaultSchedule() model.ShiftSchedule {
	return model.ShiftSchedule{
		StartTime:             model.MustTimeOfDay("08:00"),
		EndTime:               model.MustTimeOfDay("17:00"),
		ToleranceMinutes:      DefaultToleranceMinutes,
		ClockInAdvanceMinutes: DefaultAdvanceMinutes,
	}
}

// Outcome is the time-gate result for one attempt.
type Outcome struct {
	Accepted bool
	Reason   model.ReasonCode
	// Soft marks a rejection the caller may override (early clock-out).
	Soft            bool
	EarliestAllowed time.Time
	IsLate          bool
	LateMinutes     int
	ShiftStart      time.Time
	ShiftEnd        time.Time
	checkIn         bool
}

// Apply copies the derived fields onto a decision.
func (o Outcome) Apply(d *model.VerificationDecision) {
	switch {
	case o.Reason == model.ReasonTooEarly:
		d.EarliestAllowed = model.Time(o.EarliestAllowed)
	case o.Soft:
		d.RequiresOverride = true
	case o.Accepted && o.checkIn:
		d.IsLate = model.Bool(o.IsLate)
		d.LateMinutes = model.Int(o.LateMinutes)
	}
}

// Policy holds the tunable parts of classification.
type Policy struct {
	// EarlyClockOutWindow is how long before shift end a check-out stops being "early".
	EarlyClockOutWindow time.Duration
}

func (p Policy) window() time.Duration {
	if p.EarlyClockOutWindow <= 0 {
		return DefaultEarlyClockOutWindow
	}
	return p.EarlyClockOutWindow
}

// ClassifyCheckIn decides whether now is inside the check-in window of s.
func (p Policy) ClassifyCheckIn(now time.Time, s model.ShiftSchedule) Outcome {
	if s.IsDayOff {
		return Outcome{Reason: model.ReasonDayOff, checkIn: true}
	}

	start, end := s.Window(now)
	out := Outcome{ShiftStart: start, ShiftEnd: end, checkIn: true}

	earliest := start.Add(-time.Duration(s.ClockInAdvanceMinutes) * time.Minute)
	if now.Before(earliest) {
		out.Reason = model.ReasonTooEarly
		out.EarliestAllowed = earliest
		return out
	}

	lateThreshold := start.Add(time.Duration(s.ToleranceMinutes) * time.Minute)
	out.Accepted = true
	out.Reason = model.ReasonAccepted
	if now.After(lateThreshold) {
		out.IsLate = true
		out.LateMinutes = int(now.Sub(start) / time.Minute)
	}
	return out
}

// ClassifyCheckOut flags a check-out more than the early window before shift
// end as a soft TooEarlyClockOut; everything else is accepted.
func (p Policy) ClassifyCheckOut(now time.Time, s model.ShiftSchedule) Outcome {
	start, end := s.Window(now)
	out := Outcome{ShiftStart: start, ShiftEnd: end}

	if now.Before(end.Add(-p.window())) {
		out.Reason = model.ReasonTooEarlyClockOut
		out.Soft = true
		return out
	}

	out.Accepted = true
	out.Reason = model.ReasonAccepted
	return out
}

// ClassifyCheckIn uses the default policy.
func ClassifyCheckIn(now time.Time, s model.ShiftSchedule) Outcome {
	return Policy{}.ClassifyCheckIn(now, s)
}

// ClassifyCheckOut uses the default policy.
func ClassifyCheckOut(now time.Time, s model.ShiftSchedule) Outcome {
	return Policy{}.ClassifyCheckOut(now, s)
}
