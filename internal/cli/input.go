package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"checkin.engine/internal/core"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
)

// AttemptInput is the self-contained description of one attempt: the stored
// state the engine will see, the capture it is evaluated on, and optional
// setting overrides.
type AttemptInput struct {
	UserID   string                `json:"userId"`
	Date     string                `json:"date,omitempty"`
	Now      time.Time             `json:"now"`
	Mode     model.LocationMode    `json:"mode,omitempty"`
	Override bool                  `json:"override,omitempty"`
	Location *model.LocationSample `json:"location,omitempty"`
	// Zone pins the geofence; otherwise the nearest of Zones is used.
	Zone  *model.GeofenceZone  `json:"zone,omitempty"`
	Zones []model.GeofenceZone `json:"zones,omitempty"`

	Schedule   *ScheduleInput          `json:"schedule,omitempty"`
	Enrollment *model.EnrollmentRecord `json:"enrollment,omitempty"`
	Record     *model.AttendanceRecord `json:"record,omitempty"`
	Capture    CaptureInput            `json:"capture"`
	Settings   SettingsInput           `json:"settings"`
}

// CaptureInput is the face analysis of the captured frame, computed ahead of
// time. A capture without FaceDetected has no face in it.
type CaptureInput struct {
	FaceDetected bool                 `json:"faceDetected"`
	Landmarks    *face.Landmarks      `json:"landmarks,omitempty"`
	Descriptor   model.FaceDescriptor `json:"descriptor,omitempty"`
}

func (c CaptureInput) model() *face.StaticModel {
	m := &face.StaticModel{Descriptor: c.Descriptor}
	if c.FaceDetected {
		m.Landmarks = c.Landmarks
		if m.Landmarks == nil {
			m.Landmarks = &face.Landmarks{Confidence: 1}
		}
	}
	return m
}

// ScheduleInput is a shift schedule whose omitted minute fields take the
// configured defaults.
type ScheduleInput struct {
	StartTime             model.TimeOfDay `json:"startTime"`
	EndTime               model.TimeOfDay `json:"endTime"`
	ToleranceMinutes      *int            `json:"toleranceMinutes,omitempty"`
	ClockInAdvanceMinutes *int            `json:"clockInAdvanceMinutes,omitempty"`
	IsDayOff              bool            `json:"isDayOff,omitempty"`
}

func (s ScheduleInput) schedule(date string) model.ShiftSchedule {
	out := model.ShiftSchedule{
		Date:                  date,
		StartTime:             s.StartTime,
		EndTime:               s.EndTime,
		ToleranceMinutes:      -1,
		ClockInAdvanceMinutes: -1,
		IsDayOff:              s.IsDayOff,
	}
	if s.ToleranceMinutes != nil {
		out.ToleranceMinutes = *s.ToleranceMinutes
	}
	if s.ClockInAdvanceMinutes != nil {
		out.ClockInAdvanceMinutes = *s.ClockInAdvanceMinutes
	}
	return out
}

type SettingsInput struct {
	MatchThreshold             *float64 `json:"matchThreshold,omitempty"`
	DefaultZoneRadiusMeters    *float64 `json:"defaultZoneRadiusMeters,omitempty"`
	EarlyClockOutWindowMinutes *int     `json:"earlyClockOutWindowMinutes,omitempty"`
	Timezone                   string   `json:"timezone,omitempty"`
}

func (in SettingsInput) apply(s *core.Settings) error {
	if in.MatchThreshold != nil {
		s.Face.MatchThreshold = *in.MatchThreshold
	}
	if in.DefaultZoneRadiusMeters != nil {
		s.DefaultZoneRadius = *in.DefaultZoneRadiusMeters
	}
	if in.EarlyClockOutWindowMinutes != nil {
		s.Policy.EarlyClockOutWindow = time.Duration(*in.EarlyClockOutWindowMinutes) * time.Minute
	}
	if in.Timezone != "" {
		loc, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return fmt.Errorf("settings.timezone: %w", err)
		}
		s.Location = loc
	}
	return nil
}

// ClassifyInput is the input of the classify command.
type ClassifyInput struct {
	Now      time.Time     `json:"now"`
	Date     string        `json:"date,omitempty"`
	Schedule ScheduleInput `json:"schedule"`
}

// readJSON decodes the file at path, or stdin when path is "-".
func readJSON(path string, stdin io.Reader, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
