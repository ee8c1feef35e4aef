package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Fires concurrent duplicate check-ins per user at the API. Exactly one per
// user may be accepted; the rest must come back ALREADY_CLOCKED_IN.
//
// The users need an enrollment and the API a face model that recognizes the
// placeholder image, e.g. a stub embedding service returning a fixed vector.
func main() {
	url := "http://localhost:8080/api/v1/attendance/check-in"
	contentType := "application/json"

	numUsers := 1000
	requestsPerUser := 5
	totalRequests := numUsers * requestsPerUser
	concurrency := 50 // Number of concurrent requests to avoid local port exhaustion

	fmt.Printf("Starting load test: %d users (%d concurrent check-ins each) to %s with concurrency %d\n", numUsers, requestsPerUser, url, concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // Semaphore to limit concurrency

	var (
		accepted  int64
		duplicate int64
		rejected  int64
		failed    int64
		perUser   = make([]int64, numUsers)
	)

	startTime := time.Now()

	for i := 0; i < numUsers; i++ {
		userID := fmt.Sprintf("load-test-user-%d", i)
		payload, _ := json.Marshal(map[string]any{
			"userId":   userID,
			"image":    []byte("load-test-frame"),
			"mode":     "remote",
			"location": map[string]any{"latitude": 0, "longitude": 0, "accuracyMeters": 10},
		})

		for j := 0; j < requestsPerUser; j++ {
			wg.Add(1)
			sem <- struct{}{} // Acquire token

			go func(user int) {
				defer wg.Done()
				defer func() { <-sem }() // Release token

				resp, err := http.Post(url, contentType, bytes.NewReader(payload))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					return
				}
				defer resp.Body.Close()

				var d struct {
					Accepted   bool   `json:"accepted"`
					ReasonCode string `json:"reasonCode"`
				}
				if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&d) != nil {
					atomic.AddInt64(&failed, 1)
					return
				}
				switch {
				case d.Accepted:
					atomic.AddInt64(&accepted, 1)
					atomic.AddInt64(&perUser[user], 1)
				case d.ReasonCode == "ALREADY_CLOCKED_IN":
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&rejected, 1)
				}
			}(i)
		}
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration:     %v\n", duration)
	fmt.Printf("Total Requests:     %d\n", totalRequests)
	fmt.Printf("Accepted:           %d\n", accepted)
	fmt.Printf("Already clocked in: %d\n", duplicate)
	fmt.Printf("Other rejections:   %d\n", rejected)
	fmt.Printf("Failed:             %d\n", failed)
	fmt.Printf("Requests/Sec:       %.2f\n", float64(totalRequests)/duration.Seconds())

	violators := 0
	for _, n := range perUser {
		if n > 1 {
			violators++
		}
	}
	if violators > 0 {
		fmt.Printf("VIOLATION: %d users accepted more than once\n", violators)
	}
}
