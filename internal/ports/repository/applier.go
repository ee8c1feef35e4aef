package repository

import (
	"context"
	"fmt"

	"checkin.engine/internal/core/model"
)

// CommandApplier executes attendance commands against an AttendanceStore.
type CommandApplier struct {
	Store AttendanceStore
}

func NewCommandApplier(store AttendanceStore) *CommandApplier {
	return &CommandApplier{Store: store}
}

// Emit applies cmd and returns the id of the affected record.
func (a *CommandApplier) Emit(ctx context.Context, cmd model.AttendanceCommand) (string, error) {
	switch cmd.Kind {
	case model.CommandCreateClockIn:
		if cmd.Record == nil {
			return "", fmt.Errorf("command %s: missing record", cmd.ID)
		}
		return a.Store.CreateClockIn(ctx, *cmd.Record)
	case model.CommandUpdateClockOut:
		if cmd.ClockOut == nil {
			return "", fmt.Errorf("command %s: missing clock-out fields", cmd.ID)
		}
		if err := a.Store.UpdateClockOut(ctx, cmd.RecordID, *cmd.ClockOut); err != nil {
			return "", err
		}
		return cmd.RecordID, nil
	}
	return "", fmt.Errorf("command %s: unknown kind %q", cmd.ID, cmd.Kind)
}
