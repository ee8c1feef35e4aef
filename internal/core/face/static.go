package face

import (
	"context"

	"checkin.engine/internal/core/model"
)

// StaticModel replays a precomputed analysis for every frame. The harness uses
// it for descriptors computed on-device; tests use it in place of a real model.
type StaticModel struct {
	Landmarks  *Landmarks
	Descriptor model.FaceDescriptor
	DetectErr  error
	ExtractErr error
}

func (m *StaticModel) DetectLandmarks(_ context.Context, _ Frame) (*Landmarks, error) {
	if m.DetectErr != nil {
		return nil, m.DetectErr
	}
	return m.Landmarks, nil
}

func (m *StaticModel) ExtractDescriptor(_ context.Context, _ Frame) (model.FaceDescriptor, error) {
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	return m.Descriptor, nil
}
