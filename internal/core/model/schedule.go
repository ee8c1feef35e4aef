package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	// time.Parse accepts a single-digit hour for "15".
	if len(s) != 5 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the time of day to the calendar day of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, int(t)/60, int(t)%60, 0, 0, d.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ShiftSchedule is the work schedule resolved for one (user, date).
// Negative minute values mean "unset" and are filled from defaults by the resolver.
type ShiftSchedule struct {
	// Date is the day the schedule applies to (DateLayout). When empty the
	// classification anchors to the calendar day of the timestamp.
	Date                  string    `json:"date,omitempty"`
	StartTime             TimeOfDay `json:"startTime"`
	EndTime               TimeOfDay `json:"endTime"`
	ToleranceMinutes      int       `json:"toleranceMinutes"`
	ClockInAdvanceMinutes int       `json:"clockInAdvanceMinutes"`
	IsDayOff              bool      `json:"isDayOff"`
}

// Window returns the absolute shift start and end. An end at or before the
// start is an overnight shift ending the next day.
func (s ShiftSchedule) Window(ref time.Time) (start, end time.Time) {
	day := ref
	if s.Date != "" {
		if d, err := time.ParseInLocation(DateLayout, s.Date, ref.Location()); err == nil {
			day = d
		}
	}
	start = s.StartTime.On(day)
	end = s.EndTime.On(day)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}
