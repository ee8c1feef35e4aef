package worker

import (
	"context"
	"sync"
	"time"

	"checkin.engine/pkg/logger"
	"checkin.engine/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Processor handles a single queue message. A retryable failure returns
// shouldRetry with the visibility delay in seconds.
type Processor interface {
	Process(ctx context.Context, msg types.Message) (shouldRetry bool, retryDelay int32, err error)
}

// Worker polls a queue and fans messages out to a pool of processors.
type Worker struct {
	client    SQSClient
	queueURL  string
	processor Processor
	// Concurrency controls how many messages can be processed at the same time.
	Concurrency int
	// WaitTimeSeconds is the long-poll duration of each receive.
	WaitTimeSeconds int32
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
}

// NewWorker creates a new SQS worker, ready to be started.
func NewWorker(client SQSClient, url string, proc Processor) *Worker {
	return &Worker{
		client:          client,
		queueURL:        url,
		processor:       proc,
		Concurrency:     10,
		WaitTimeSeconds: 20,
		ErrorBackoff:    time.Second,
	}
}

// Start runs the poller until ctx is cancelled and returns once every
// in-flight message has been handled.
func (w *Worker) Start(ctx context.Context) {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Info().Int("concurrency", concurrency).Str("queue", w.queueURL).Msg("SQS Worker started. Polling for messages...")

	messagesCh := make(chan types.Message, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processMessages(ctx, messagesCh)
		}()
	}

	w.pollMessages(ctx, messagesCh, concurrency)
	wg.Wait()
	log.Info().Msg("SQS Worker stopped")
}

func (w *Worker) pollMessages(ctx context.Context, messagesCh chan<- types.Message, batch int) {
	defer close(messagesCh)

	if batch > 10 {
		// SQS caps a single receive at 10 messages.
		batch = 10
	}

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Poller shutting down...")
			return
		}

		output, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              &w.queueURL,
			MaxNumberOfMessages:   int32(batch),
			WaitTimeSeconds:       w.WaitTimeSeconds,
			MessageAttributeNames: []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Error receiving messages")
			select {
			case <-ctx.Done():
			case <-time.After(w.ErrorBackoff):
			}
			continue
		}
		if len(output.Messages) > 0 {
			log.Debug().Int("count", len(output.Messages)).Msg("Received messages")
		}
		for _, msg := range output.Messages {
			select {
			case messagesCh <- msg:
			case <-ctx.Done():
				// Unsent messages become visible again after the visibility timeout.
				return
			}
		}
	}
}

func (w *Worker) processMessages(ctx context.Context, messagesCh <-chan types.Message) {
	for msg := range messagesCh {
		w.handleSingleMessage(ctx, msg)
	}
}

// handleSingleMessage deletes the message on success, delays it on a
// retryable failure and leaves it for the dead-letter policy otherwise.
func (w *Worker) handleSingleMessage(ctx context.Context, msg types.Message) {
	ctx, span := telemetry.StartSpanFromSQSMessage(ctx, msg)
	defer span.End()

	ctx = logger.EnrichContextWithLogger(ctx)

	shouldRetry, retryDelay, err := w.processor.Process(ctx, msg)

	if err != nil && shouldRetry {
		log.Ctx(ctx).Warn().Err(err).Int32("retry_delay", retryDelay).Msg("Processing failed, will retry")

		// Detached so a shutdown does not drop the visibility change.
		_, verr := w.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &w.queueURL,
			ReceiptHandle:     msg.ReceiptHandle,
			VisibilityTimeout: retryDelay,
		})
		if verr != nil {
			log.Ctx(ctx).Error().Err(verr).Msg("Failed to change message visibility")
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Unrecoverable error processing message, will not retry")
		return
	}

	if _, derr := w.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      &w.queueURL,
		ReceiptHandle: msg.ReceiptHandle,
	}); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("Failed to delete message")
	}
}
