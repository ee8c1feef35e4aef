package face

import (
	"context"
	"sync"

	"checkin.engine/internal/core/model"
)

const (
	// DefaultReadyThreshold gates the capture button only. It is on the same
	// scale as the match threshold but never decides acceptance.
	DefaultReadyThreshold = 0.55
	DefaultRescoreEvery   = 10
)

// LiveSettings configure the advisory preview loop.
type LiveSettings struct {
	ReadyThreshold float64
	// RescoreEvery re-extracts the descriptor on every Nth frame with a face.
	RescoreEvery int
}

// AdvisoryState is what the preview loop reports to the presentation layer.
type AdvisoryState struct {
	FrameIndex   int        `json:"frameIndex"`
	FaceDetected bool       `json:"faceDetected"`
	Landmarks    *Landmarks `json:"landmarks,omitempty"`
	Scored       bool       `json:"scored"`
	Score        float64    `json:"score"`
	Ready        bool       `json:"ready"`
	Err          string     `json:"error,omitempty"`
}

// LiveMonitor runs cheap per-frame detection and a throttled re-score. It
// only has read access to a descriptor and therefore cannot change attendance state.
type LiveMonitor struct {
	detector       Detector
	extractor      Extractor
	enrolled       model.FaceDescriptor
	readyThreshold float64
	rescoreEvery   int
}

// NewLiveMonitor creates a monitor scoring against enrolled. With an empty
// enrolled descriptor the monitor only reports detection.
func NewLiveMonitor(detector Detector, extractor Extractor, enrolled model.FaceDescriptor, s LiveSettings) *LiveMonitor {
	if s.ReadyThreshold <= 0 {
		s.ReadyThreshold = DefaultReadyThreshold
	}
	if s.RescoreEvery <= 0 {
		s.RescoreEvery = DefaultRescoreEvery
	}
	return &LiveMonitor{
		detector:       detector,
		extractor:      extractor,
		enrolled:       enrolled,
		readyThreshold: s.ReadyThreshold,
		rescoreEvery:   s.RescoreEvery,
	}
}

// Run consumes frames until ctx is cancelled or frames is closed. The returned
// channel holds at most the latest state and is closed when the loop exits.
func (m *LiveMonitor) Run(ctx context.Context, frames <-chan Frame) <-chan AdvisoryState {
	out := make(chan AdvisoryState, 1)
	go func() {
		defer close(out)
		m.loop(ctx, frames, out)
	}()
	return out
}

func (m *LiveMonitor) loop(ctx context.Context, frames <-chan Frame, out chan AdvisoryState) {
	var (
		index     int
		withFace  int
		lastScore float64
		scored    bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			index++
			state := AdvisoryState{FrameIndex: index}

			landmarks, err := m.detector.DetectLandmarks(ctx, frame)
			switch {
			case err != nil:
				state.Err = err.Error()
			case landmarks != nil:
				state.FaceDetected = true
				state.Landmarks = landmarks
				withFace++
				if len(m.enrolled) > 0 && (withFace-1)%m.rescoreEvery == 0 {
					if score, ok := m.rescore(ctx, frame); ok {
						lastScore, scored = score, true
					}
				}
			}

			state.Scored = scored
			state.Score = lastScore
			state.Ready = state.FaceDetected && scored && lastScore >= m.readyThreshold
			publishLatest(out, state)
		}
	}
}

func (m *LiveMonitor) rescore(ctx context.Context, frame Frame) (float64, bool) {
	descriptor, err := m.extractor.ExtractDescriptor(ctx, frame)
	if err != nil || len(descriptor) == 0 {
		return 0, false
	}
	score, err := Similarity(descriptor, m.enrolled)
	if err != nil {
		return 0, false
	}
	return score, true
}

// publishLatest replaces any unread state so a slow consumer never blocks the loop.
func publishLatest(out chan AdvisoryState, state AdvisoryState) {
	select {
	case out <- state:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- state:
	default:
	}
}

// Session is a caller-owned capture session: it runs the live monitor and
// keeps the most recent frame for the authoritative capture call.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}
	states <-chan AdvisoryState

	mu     sync.Mutex
	latest *Frame
	closed bool
}

// StartSession starts monitoring frames. Close must be called to release it.
func StartSession(ctx context.Context, monitor *LiveMonitor, frames <-chan Frame) *Session {
	ctx, cancel := context.WithCancel(ctx)
	tap := make(chan Frame)
	s := &Session{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(tap)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				s.remember(frame)
				select {
				case tap <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.states = monitor.Run(ctx, tap)
	return s
}

// States streams advisory updates until the session ends.
func (s *Session) States() <-chan AdvisoryState { return s.states }

// Snapshot returns a private copy of the most recent frame.
func (s *Session) Snapshot() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.latest == nil {
		return Frame{}, false
	}
	return s.latest.Clone(), true
}

// Close cancels the preview loop and wipes the retained frame. It is safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil {
		s.latest.Wipe()
		s.latest = nil
	}
	s.closed = true
}

func (s *Session) remember(frame Frame) {
	c := frame.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil {
		s.latest.Wipe()
	}
	s.latest = &c
}
