package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkin.engine/internal/capture"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
)

// CaptureRequest drives an attempt from live devices instead of pre-captured samples.
type CaptureRequest struct {
	UserID   string
	Date     string
	Zone     *model.GeofenceZone
	Mode     model.LocationMode
	Override bool

	Frames    capture.FrameProvider
	Locations capture.LocationProvider
}

// CaptureCheckIn acquires a frame and a fix within the acquisition timeout and
// runs ProcessCheckIn. The frame is wiped before returning.
func (s *AttendanceService) CaptureCheckIn(ctx context.Context, req CaptureRequest) (model.VerificationDecision, error) {
	in, d, ok := s.acquire(ctx, req)
	if !ok {
		return d, nil
	}
	defer in.Frame.Wipe()
	return s.ProcessCheckIn(ctx, in)
}

// CaptureCheckOut is CaptureCheckIn for check-out.
func (s *AttendanceService) CaptureCheckOut(ctx context.Context, req CaptureRequest) (model.VerificationDecision, error) {
	in, d, ok := s.acquire(ctx, req)
	if !ok {
		return d, nil
	}
	defer in.Frame.Wipe()
	return s.ProcessCheckOut(ctx, CheckOutRequest{CheckInRequest: in, Override: req.Override})
}

func (s *AttendanceService) acquire(ctx context.Context, req CaptureRequest) (CheckInRequest, model.VerificationDecision, bool) {
	sample, err := capture.AcquireLocation(ctx, req.Locations, s.acquireTimeout)
	if err != nil {
		return CheckInRequest{}, acquisitionFailure(err, "location"), false
	}

	frame, err := capture.AcquireFrame(ctx, req.Frames, s.acquireTimeout)
	if err != nil {
		return CheckInRequest{}, acquisitionFailure(err, "camera"), false
	}

	return CheckInRequest{
		UserID:   req.UserID,
		Date:     req.Date,
		Frame:    frame,
		Location: sample,
		Now:      s.now(),
		Zone:     req.Zone,
		Mode:     req.Mode,
	}, model.VerificationDecision{}, true
}

func acquisitionFailure(err error, device string) model.VerificationDecision {
	if errors.Is(err, capture.ErrAcquisitionTimeout) {
		d := model.Reject(model.ReasonAcquisitionTimeout, "")
		d.Cause = device + ": " + err.Error()
		return d
	}
	return model.SystemError("", fmt.Errorf("acquire %s: %w", device, err))
}

// SessionFrames serves the latest frame of a live session as the capture
// frame, waiting for the first one to arrive.
func SessionFrames(session *face.Session) capture.FrameProvider {
	return capture.FrameFunc(func(ctx context.Context) (face.Frame, error) {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			if frame, ok := session.Snapshot(); ok {
				return frame, nil
			}
			select {
			case <-ctx.Done():
				return face.Frame{}, ctx.Err()
			case <-ticker.C:
			}
		}
	})
}
