package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"checkin.engine/internal/core"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds a request carrying one encoded camera frame.
const maxBodyBytes = 10 << 20

// AttendanceService is the part of the engine the HTTP layer drives.
type AttendanceService interface {
	ProcessCheckIn(ctx context.Context, req core.CheckInRequest) (model.VerificationDecision, error)
	ProcessCheckOut(ctx context.Context, req core.CheckOutRequest) (model.VerificationDecision, error)
	LiveDetect(ctx context.Context, frame face.Frame) (*face.Landmarks, error)
}

type AttendanceHandler struct {
	Service AttendanceService
}

// AttendanceRequest is the body of check-in and check-out. Image is the
// base64-encoded frame captured when the user pressed the button.
type AttendanceRequest struct {
	UserID   string                `json:"userId"`
	Date     string                `json:"date,omitempty"`
	Image    []byte                `json:"image"`
	Location *model.LocationSample `json:"location,omitempty"`
	Zone     *model.GeofenceZone   `json:"zone,omitempty"`
	Mode     model.LocationMode    `json:"mode,omitempty"`
	Override bool                  `json:"override,omitempty"`
}

func (r AttendanceRequest) toCore() core.CheckInRequest {
	return core.CheckInRequest{
		UserID:   r.UserID,
		Date:     r.Date,
		Frame:    face.Frame{Data: r.Image},
		Location: r.Location,
		Zone:     r.Zone,
		Mode:     r.Mode,
	}
}

type LiveDetectRequest struct {
	Image []byte `json:"image"`
}

type LiveDetectResponse struct {
	FaceDetected bool            `json:"faceDetected"`
	Landmarks    *face.Landmarks `json:"landmarks,omitempty"`
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAttendance(w, r)
	if !ok {
		return
	}
	in := req.toCore()
	defer in.Frame.Wipe()

	d, err := h.Service.ProcessCheckIn(r.Context(), in)
	respondDecision(w, r, d, err)
}

func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAttendance(w, r)
	if !ok {
		return
	}
	in := core.CheckOutRequest{CheckInRequest: req.toCore(), Override: req.Override}
	defer in.Frame.Wipe()

	d, err := h.Service.ProcessCheckOut(r.Context(), in)
	respondDecision(w, r, d, err)
}

// LiveDetect serves the advisory preview. Its answer never changes attendance state.
func (h *AttendanceHandler) LiveDetect(w http.ResponseWriter, r *http.Request) {
	var req LiveDetectRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Image) == 0 {
		http.Error(w, "image is required", http.StatusBadRequest)
		return
	}
	frame := face.Frame{Data: req.Image}
	defer frame.Wipe()

	landmarks, err := h.Service.LiveDetect(r.Context(), frame)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("Live detection failed")
		http.Error(w, "Face model unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, LiveDetectResponse{FaceDetected: landmarks != nil, Landmarks: landmarks})
}

func decodeAttendance(w http.ResponseWriter, r *http.Request) (AttendanceRequest, bool) {
	var req AttendanceRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return req, false
	}
	if len(req.Image) == 0 {
		http.Error(w, "image is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// respondDecision writes rejections as 200 with the decision body; only
// infrastructure faults map to an error status so clients can retry them.
func respondDecision(w http.ResponseWriter, r *http.Request, d model.VerificationDecision, err error) {
	if errors.Is(err, core.ErrInvalidRequest) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Unexpected service error")
		http.Error(w, "Service error processing attempt", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if d.Reason == model.ReasonSystemError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
