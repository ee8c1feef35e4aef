package face

import (
	"context"
	"errors"
	"fmt"

	"checkin.engine/internal/core/model"
)

// DefaultMatchThreshold is the authoritative accept threshold on the Similarity scale.
const DefaultMatchThreshold = 0.40

// Settings configure a Verifier.
type Settings struct {
	MatchThreshold float64
	// ModelVersion, when set, must equal the enrollment's model version.
	ModelVersion string
}

// Outcome is the result of an authoritative verification.
type Outcome struct {
	Accepted  bool
	Reason    model.ReasonCode
	Scored    bool
	Score     float64
	Threshold float64
}

// Apply copies the derived fields onto a decision.
func (o Outcome) Apply(d *model.VerificationDecision) {
	if !o.Scored {
		return
	}
	d.Score = model.Float(o.Score)
	d.Threshold = model.Float(o.Threshold)
}

// Verifier compares a captured frame against an enrolled identity.
type Verifier struct {
	detector     Detector
	extractor    Extractor
	threshold    float64
	modelVersion string
}

// NewVerifier creates a verifier. A non-positive threshold falls back to DefaultMatchThreshold.
func NewVerifier(detector Detector, extractor Extractor, s Settings) *Verifier {
	if s.MatchThreshold <= 0 {
		s.MatchThreshold = DefaultMatchThreshold
	}
	return &Verifier{
		detector:     detector,
		extractor:    extractor,
		threshold:    s.MatchThreshold,
		modelVersion: s.ModelVersion,
	}
}

func (v *Verifier) Threshold() float64 { return v.threshold }

// LiveDetect runs landmark detection only. Its result is advisory and never
// authorizes an attendance transaction.
func (v *Verifier) LiveDetect(ctx context.Context, frame Frame) (*Landmarks, error) {
	return v.detector.DetectLandmarks(ctx, frame)
}

// Verify runs the full identity check for the moment of capture. Rejections are
// returned in the Outcome; the error is reserved for infrastructure faults.
func (v *Verifier) Verify(ctx context.Context, frame Frame, enrollment *model.EnrollmentRecord) (Outcome, error) {
	landmarks, err := v.detector.DetectLandmarks(ctx, frame)
	if err != nil {
		return Outcome{}, fmt.Errorf("detect landmarks: %w", err)
	}
	if landmarks == nil {
		return Outcome{Reason: model.ReasonNoFaceDetected}, nil
	}

	descriptor, err := v.extractor.ExtractDescriptor(ctx, frame)
	if errors.Is(err, ErrExtraction) {
		return Outcome{Reason: model.ReasonExtractionFailed}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("extract descriptor: %w", err)
	}
	if len(descriptor) == 0 {
		return Outcome{Reason: model.ReasonExtractionFailed}, nil
	}

	if enrollment == nil || !enrollment.Active || len(enrollment.Descriptor) == 0 {
		return Outcome{Reason: model.ReasonEnrollmentMissing}, nil
	}
	if v.modelVersion != "" && enrollment.ModelVersion != "" && enrollment.ModelVersion != v.modelVersion {
		return Outcome{Reason: model.ReasonExtractionFailed}, nil
	}

	score, err := Similarity(descriptor, enrollment.Descriptor)
	if err != nil {
		return Outcome{Reason: model.ReasonExtractionFailed}, nil
	}

	out := Outcome{Scored: true, Score: score, Threshold: v.threshold}
	if score >= v.threshold {
		out.Accepted = true
		out.Reason = model.ReasonAccepted
	} else {
		out.Reason = model.ReasonNoMatch
	}
	return out, nil
}
