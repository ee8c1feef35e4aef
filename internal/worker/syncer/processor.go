// Package syncer forwards accepted attendance transitions to the legacy
// attendance system.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports/messaging"
	"checkin.engine/internal/ports/repository"
	"checkin.engine/internal/worker/legacyapi"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// DefaultMaxRetries bounds the attempts before a record is marked FAILED.
const DefaultMaxRetries = 8

// Processor handles attendance events from the sync queue. Calls to the
// legacy system go through a circuit breaker.
type Processor struct {
	Store      repository.SyncStore
	MaxRetries int

	legacy legacyapi.Client
	cb     *gobreaker.CircuitBreaker
}

func NewProcessor(store repository.SyncStore, legacy legacyapi.Client) *Processor {
	settings := gobreaker.Settings{
		Name:        "Legacy-API",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is bigger then 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// A refused payload says nothing about the health of the legacy system.
			return err == nil || errors.Is(err, legacyapi.ErrRejected)
		},
	}

	return &Processor{
		Store:      store,
		MaxRetries: DefaultMaxRetries,
		legacy:     legacy,
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

// Process forwards one event. The record's sync status follows its latest
// transition; an event for an earlier transition is still forwarded but
// leaves the status alone.
func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.AttendanceEvent
	if msg.Body == nil {
		return false, 0, errors.New("empty message body")
	}
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal attendance event")
		return false, 0, err
	}
	if event.RecordID == "" {
		return false, 0, errors.New("attendance event without record id")
	}

	logger := log.Ctx(ctx).With().
		Str("record_id", event.RecordID).
		Str("event_type", string(event.Type)).
		Logger()

	record, err := p.Store.GetByID(ctx, event.RecordID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, 0, fmt.Errorf("record %s: %w", event.RecordID, err)
	}
	if err != nil {
		return true, 10, fmt.Errorf("failed to get record from db: %w", err)
	}

	tracks := event.Type == latestEvent(record)
	if tracks && record.SyncStatus == model.SyncCompleted {
		logger.Info().Msg("Already synced. Skipping.")
		return false, 0, nil
	}

	// Stale events have no status row to count in, so deliveries bound them.
	retries := deliveries(msg) - 1
	if tracks {
		retries = max(retries, record.SyncRetryCount)
	}
	if retries > p.MaxRetries {
		return false, 0, fmt.Errorf("record %s: %s sync gave up after %d attempts", record.ID, event.Type, retries)
	}
	if tracks {
		p.setStatus(ctx, record.ID, model.SyncProcessing, retries)
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.legacy.RecordAttendance(ctx, event)
	})
	if err == nil {
		if tracks {
			if err := p.Store.UpdateSyncStatus(ctx, record.ID, model.SyncCompleted, 0); err != nil {
				return true, 10, fmt.Errorf("failed to mark record synced: %w", err)
			}
		}
		return false, 0, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) {
		logger.Warn().Msg("Circuit Breaker is OPEN; skipping Legacy API call")
	}

	retries++
	if errors.Is(err, legacyapi.ErrRejected) || retries > p.MaxRetries {
		if tracks {
			p.setStatus(ctx, record.ID, model.SyncFailed, retries)
		}
		return false, 0, err
	}

	if tracks {
		p.setStatus(ctx, record.ID, model.SyncPending, retries)
	}
	return true, calculateBackoff(retries), err
}

func (p *Processor) setStatus(ctx context.Context, id string, status model.SyncStatus, retries int) {
	if err := p.Store.UpdateSyncStatus(ctx, id, status, retries); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("status", string(status)).Msg("Failed to update sync status")
	}
}

// deliveries is the SQS receive count of msg, or 1 when it was not requested.
func deliveries(msg types.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// latestEvent is the event type of the record's most recent transition.
func latestEvent(r *model.AttendanceRecord) messaging.EventType {
	if r.State() == model.StateClockedOut {
		return messaging.EventClockOut
	}
	return messaging.EventClockIn
}

// calculateBackoff determines how long to wait before retrying a failed job.
// It increases the delay exponentially with each retry.
func calculateBackoff(retryCount int) int32 {
	backoff := math.Pow(2, float64(retryCount)) * 10
	if backoff > 3600 {
		return 3600 // max at 1 hour
	}
	return int32(backoff)
}
