package ports

import (
	"context"

	"checkin.engine/internal/core/model"
)

// CommandSink is the output port for the single persistence command an
// accepted decision produces. It returns the id of the affected record.
type CommandSink interface {
	Emit(ctx context.Context, cmd model.AttendanceCommand) (string, error)
}

// CommandSinkFunc adapts a function to CommandSink.
type CommandSinkFunc func(ctx context.Context, cmd model.AttendanceCommand) (string, error)

func (f CommandSinkFunc) Emit(ctx context.Context, cmd model.AttendanceCommand) (string, error) {
	return f(ctx, cmd)
}
