package model

import "time"

// CommandKind is the mutation an accepted decision asks the store to apply.
type CommandKind string

const (
	CommandCreateClockIn  CommandKind = "CREATE_CLOCK_IN"
	CommandUpdateClockOut CommandKind = "UPDATE_CLOCK_OUT"
)

// AttendanceCommand is the persistence command emitted by an accepted decision.
// CREATE_CLOCK_IN carries Record; UPDATE_CLOCK_OUT carries RecordID and ClockOut.
type AttendanceCommand struct {
	ID       string            `json:"id"`
	Kind     CommandKind       `json:"kind"`
	UserID   string            `json:"userId"`
	Date     string            `json:"date"`
	RecordID string            `json:"recordId,omitempty"`
	Record   *AttendanceRecord `json:"record,omitempty"`
	ClockOut *ClockOutFields   `json:"clockOut,omitempty"`
	IssuedAt time.Time         `json:"issuedAt"`
}
