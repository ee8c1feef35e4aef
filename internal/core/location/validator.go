package location

import "checkin.engine/internal/core/model"

// Status is the coarse result of a location check.
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	// StatusPending means no fix has been acquired yet; the caller should retry.
	StatusPending Status = "PENDING"
)

// Outcome is the result of Validate. Distance fields are set only when a
// distance was actually computed against a zone.
type Outcome struct {
	Status            Status
	Reason            model.ReasonCode
	Measured          bool
	DistanceMeters    float64
	MaxDistanceMeters float64
	ZoneID            string
}

func (o Outcome) Accepted() bool { return o.Status == StatusAccepted }

// Apply copies the derived fields onto a decision.
func (o Outcome) Apply(d *model.VerificationDecision) {
	if !o.Measured {
		return
	}
	d.DistanceMeters = model.Float(o.DistanceMeters)
	d.MaxDistanceMeters = model.Float(o.MaxDistanceMeters)
	d.ZoneID = o.ZoneID
}

// Validate checks sample against zone under mode.
//
// A mocked fix is rejected before any distance is computed, in every mode.
// A nil sample yields StatusPending rather than a rejection.
func Validate(sample *model.LocationSample, zone *model.GeofenceZone, mode model.LocationMode) Outcome {
	if sample == nil {
		return Outcome{Status: StatusPending, Reason: model.ReasonLocationPending}
	}
	if sample.IsMocked {
		return Outcome{Status: StatusRejected, Reason: model.ReasonLocationSpoofed}
	}

	if mode == model.ModeRemote {
		return Outcome{Status: StatusAccepted, Reason: model.ReasonAccepted}
	}

	if zone == nil {
		return Outcome{Status: StatusRejected, Reason: model.ReasonZoneNotConfigured}
	}

	out := Outcome{
		Measured:          true,
		DistanceMeters:    DistanceMeters(sample.Coordinate(), zone.Center()),
		MaxDistanceMeters: zone.Radius(),
		ZoneID:            zone.ID,
	}
	if out.DistanceMeters <= out.MaxDistanceMeters {
		out.Status = StatusAccepted
		out.Reason = model.ReasonAccepted
		return out
	}

	out.Status = StatusRejected
	out.Reason = model.ReasonOutOfRange
	return out
}
