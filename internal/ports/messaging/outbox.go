package messaging

import (
	"context"

	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports"
	"github.com/rs/zerolog/log"
)

// OutboxSink applies commands through next and then publishes the resulting
// event. A failed publish is logged and never fails the command.
type OutboxSink struct {
	next      ports.CommandSink
	publisher EventPublisher
}

func NewOutboxSink(next ports.CommandSink, publisher EventPublisher) *OutboxSink {
	return &OutboxSink{next: next, publisher: publisher}
}

func (o *OutboxSink) Emit(ctx context.Context, cmd model.AttendanceCommand) (string, error) {
	id, err := o.next.Emit(ctx, cmd)
	if err != nil {
		return "", err
	}

	event, ok := EventFromCommand(id, cmd)
	if !ok || o.publisher == nil {
		return id, nil
	}
	if err := o.publisher.PublishAttendance(ctx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("record_id", id).
			Str("event_type", string(event.Type)).
			Msg("Failed to publish attendance event")
	}
	return id, nil
}
