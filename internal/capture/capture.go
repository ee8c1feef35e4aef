// Package capture bounds the wait on device hardware (positioning, camera)
// so a stalled sensor surfaces as a retryable timeout instead of a hang.
package capture

import (
	"context"
	"errors"
	"time"

	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
)

// DefaultTimeout applies when a non-positive timeout is passed.
const DefaultTimeout = 10 * time.Second

var ErrAcquisitionTimeout = errors.New("hardware acquisition timed out")

// LocationProvider returns the current fix. A nil sample with a nil error
// means the platform has no fix yet.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (*model.LocationSample, error)
}

// FrameProvider returns the next camera frame.
type FrameProvider interface {
	NextFrame(ctx context.Context) (face.Frame, error)
}

// LocationFunc adapts a function to LocationProvider.
type LocationFunc func(ctx context.Context) (*model.LocationSample, error)

func (f LocationFunc) CurrentLocation(ctx context.Context) (*model.LocationSample, error) {
	return f(ctx)
}

// FrameFunc adapts a function to FrameProvider.
type FrameFunc func(ctx context.Context) (face.Frame, error)

func (f FrameFunc) NextFrame(ctx context.Context) (face.Frame, error) { return f(ctx) }

// AcquireLocation waits at most timeout for a fix.
func AcquireLocation(ctx context.Context, p LocationProvider, timeout time.Duration) (*model.LocationSample, error) {
	return acquire(ctx, timeout, p.CurrentLocation, nil)
}

// AcquireFrame waits at most timeout for a frame. A frame delivered after
// the wait was abandoned is wiped.
func AcquireFrame(ctx context.Context, p FrameProvider, timeout time.Duration) (face.Frame, error) {
	return acquire(ctx, timeout, p.NextFrame, wipeFrame)
}

func wipeFrame(f face.Frame) { f.Wipe() }

type result[T any] struct {
	value T
	err   error
}

// acquire runs fn under the timeout. discard, when set, receives a value
// that arrives after acquire has returned.
func acquire[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), discard func(T)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so a provider that ignores ctx can still finish and exit.
	done := make(chan result[T], 1)
	go func() {
		v, err := fn(actx)
		done <- result[T]{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, ErrAcquisitionTimeout
		}
		return r.value, r.err
	case <-actx.Done():
		if discard != nil {
			go func() {
				if r := <-done; r.err == nil {
					discard(r.value)
				}
			}()
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrAcquisitionTimeout
	}
}
