package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Producer struct {
	sender   MessageSender
	queueURL string
}

func NewProducer(sender MessageSender, queueURL string) *Producer {
	return &Producer{sender: sender, queueURL: queueURL}
}

func NewSQSProducer(client SQSClient, queueURL string) *Producer {
	return NewProducer(NewSQSSender(client), queueURL)
}

func (p *Producer) PublishAttendance(ctx context.Context, event AttendanceEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("app.user_id", event.UserID),
		attribute.String("app.record_id", event.RecordID),
	)

	if err := p.sender.SendMessage(ctx, p.queueURL, string(event.Type), b); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
