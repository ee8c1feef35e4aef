package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"sync"

	"checkin.engine/internal/ports/messaging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// seen dedupes on the idempotency key the sync worker sends.
var (
	mu   sync.Mutex
	seen = map[string]bool{}
)

// failureRate makes the mock return 503 for a share of requests so the
// worker's retry and circuit breaker paths can be exercised locally.
var failureRate = 0.0

func attendanceHandler(w http.ResponseWriter, r *http.Request) {
	var event messaging.AttendanceEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if rand.Float64() < failureRate {
		http.Error(w, "Temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	mu.Lock()
	duplicate := seen[key]
	seen[key] = true
	mu.Unlock()

	log.Info().
		Str("type", string(event.Type)).
		Str("record_id", event.RecordID).
		Str("user_id", event.UserID).
		Int("work_minutes", event.WorkMinutes).
		Bool("duplicate", duplicate).
		Msg("Received attendance event")
	w.WriteHeader(http.StatusOK)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if v := os.Getenv("MOCK_FAILURE_RATE"); v != "" {
		if err := json.Unmarshal([]byte(v), &failureRate); err != nil {
			log.Fatal().Err(err).Msg("MOCK_FAILURE_RATE must be a number")
		}
	}

	http.HandleFunc("/", attendanceHandler)
	log.Info().Float64("failure_rate", failureRate).Msg("Legacy API mock server starting on port 8081...")
	log.Fatal().Err(http.ListenAndServe(":8081", nil)).Msg("server stopped")
}
