package messaging

import (
	"context"

	"checkin.engine/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSender implements MessageSender for AWS SQS.
type SQSSender struct {
	client SQSClient
}

func NewSQSSender(client SQSClient) *SQSSender {
	return &SQSSender{client: client}
}

func (s *SQSSender) SendMessage(ctx context.Context, destination string, eventType string, body []byte) error {
	// Trace context travels in the message attributes.
	attributes := telemetry.InjectTraceContext(ctx)
	attributes["EventType"] = types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(eventType),
	}

	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(destination),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attributes,
	})
	return err
}
