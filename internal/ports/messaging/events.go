package messaging

import (
	"time"

	"checkin.engine/internal/core/model"
)

type EventType string

const (
	EventClockIn  EventType = "CLOCK_IN"
	EventClockOut EventType = "CLOCK_OUT"
)

// AttendanceEvent is the JSON payload sent via SQS after a record changes.
type AttendanceEvent struct {
	Type        EventType `json:"type"`
	RecordID    string    `json:"recordId"`
	UserID      string    `json:"userId"`
	Date        string    `json:"date"`
	At          time.Time `json:"at"`
	IsLate      bool      `json:"isLate,omitempty"`
	LateMinutes int       `json:"lateMinutes,omitempty"`
	WorkMinutes int       `json:"workMinutes,omitempty"`
	Score       float64   `json:"score,omitempty"`
}

// EventFromCommand builds the event for an applied command. ok is false for
// commands that carry no publishable change.
func EventFromCommand(recordID string, cmd model.AttendanceCommand) (AttendanceEvent, bool) {
	ev := AttendanceEvent{RecordID: recordID, UserID: cmd.UserID, Date: cmd.Date}
	switch cmd.Kind {
	case model.CommandCreateClockIn:
		if cmd.Record == nil || cmd.Record.ClockIn == nil {
			return ev, false
		}
		ev.Type = EventClockIn
		ev.At = cmd.Record.ClockIn.At
		ev.IsLate = cmd.Record.IsLate
		ev.LateMinutes = cmd.Record.LateMinutes
		ev.Score = cmd.Record.ClockIn.Score
	case model.CommandUpdateClockOut:
		if cmd.ClockOut == nil {
			return ev, false
		}
		ev.Type = EventClockOut
		ev.At = cmd.ClockOut.ClockOut.At
		ev.WorkMinutes = cmd.ClockOut.WorkMinutes
	default:
		return ev, false
	}
	return ev, true
}
