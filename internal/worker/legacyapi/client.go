package legacyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"checkin.engine/internal/ports/messaging"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrRejected is returned when the legacy system refuses an event for good
// (4xx); resending the same payload will not help.
var ErrRejected = errors.New("legacy api rejected the event")

// Client forwards attendance events to the legacy attendance system.
type Client interface {
	RecordAttendance(ctx context.Context, event messaging.AttendanceEvent) error
}

// HTTPClient API client using HTTP
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
	}
}

// RecordAttendance posts the event as JSON.
func (c *HTTPClient) RecordAttendance(ctx context.Context, event messaging.AttendanceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal legacy api payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create legacy api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.RecordID+":"+string(event.Type))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call legacy api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("legacy api returned non-successful status code: %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	log.Ctx(ctx).Info().
		Str("record_id", event.RecordID).
		Str("event_type", string(event.Type)).
		Msg("Recorded attendance in legacy system")
	return nil
}
