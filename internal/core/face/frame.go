// Package face decides whether a captured frame matches a user's enrolled
// identity, and runs the advisory live preview that drives capture UI.
package face

import (
	"context"
	"errors"
	"time"

	"checkin.engine/internal/core/model"
)

// ErrExtraction marks a descriptor extraction that ran but produced nothing usable.
// Other extractor errors are treated as infrastructure faults.
var ErrExtraction = errors.New("descriptor extraction failed")

// Frame is a single captured camera image.
type Frame struct {
	ID         string    `json:"id,omitempty"`
	Data       []byte    `json:"-"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Clone returns a copy that does not share pixel data with f.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = append([]byte(nil), f.Data...)
	}
	return c
}

// Wipe zeroes and releases the pixel data.
func (f *Frame) Wipe() {
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.Data = nil
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks is the result of face detection on a frame.
type Landmarks struct {
	// Box is [x1, y1, x2, y2] in pixels.
	Box        [4]float64 `json:"box"`
	Points     []Point    `json:"points,omitempty"`
	Confidence float64    `json:"confidence"`
}

// Detector finds a face in a frame. It returns nil, nil when there is no face.
type Detector interface {
	DetectLandmarks(ctx context.Context, frame Frame) (*Landmarks, error)
}

// Extractor produces an identity descriptor for the face in a frame.
type Extractor interface {
	ExtractDescriptor(ctx context.Context, frame Frame) (model.FaceDescriptor, error)
}

// Model is a detector and extractor backed by the same face model.
type Model interface {
	Detector
	Extractor
}
