package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"checkin.engine/internal/core"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/core/shift"
)

const checkInAttempt = `{
  "userId": "u1",
  "date": "2026-03-10",
  "now": "2026-03-10T08:20:00Z",
  "location": {"latitude": 52.2297, "longitude": 21.0122, "accuracyMeters": 6},
  "zones": [{"id": "hq", "centerLatitude": 52.2297, "centerLongitude": 21.0125, "radiusMeters": 100}],
  "enrollment": {"descriptor": [0.6, 0.8, 0], "active": true},
  "capture": {"faceDetected": true, "descriptor": [0.6, 0.8, 0]}
}`

const checkOutAttempt = `{
  "userId": "u1",
  "date": "2026-03-10",
  "now": "2026-03-10T15:00:00Z",
  "override": %s,
  "location": {"latitude": 52.2297, "longitude": 21.0122},
  "zones": [{"id": "hq", "centerLatitude": 52.2297, "centerLongitude": 21.0122, "radiusMeters": 100}],
  "enrollment": {"descriptor": [0.6, 0.8, 0], "active": true},
  "record": {"id": "rec-1", "clockIn": {"at": "2026-03-10T08:00:00Z", "score": 1}},
  "capture": {"faceDetected": true, "descriptor": [0.6, 0.8, 0]}
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decision(t *testing.T, out string) model.VerificationDecision {
	t.Helper()
	var d model.VerificationDecision
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("output is not a decision: %v\n%s", err, out)
	}
	return d
}

func TestVerifyCheckInFromStdin(t *testing.T) {
	out, err := run(t, checkInAttempt, "verify-checkin", "-")
	if err != nil {
		t.Fatal(err)
	}
	d := decision(t, out)
	if !d.Accepted || d.State != model.StateClockedIn {
		t.Fatalf("decision = %+v", d)
	}
	if d.LateMinutes == nil || *d.LateMinutes != 20 {
		t.Errorf("LateMinutes = %v, want 20", d.LateMinutes)
	}
	if d.ZoneID != "hq" || d.DistanceMeters == nil || *d.DistanceMeters > 30 {
		t.Errorf("zone = %q distance = %v", d.ZoneID, d.DistanceMeters)
	}
}

func TestVerifyCheckInFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempt.json")
	if err := os.WriteFile(path, []byte(checkInAttempt), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "verify-checkin", path, "--compact")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Errorf("--compact output spans lines:\n%s", out)
	}
	if !decision(t, out).Accepted {
		t.Error("expected acceptance")
	}
}

func TestVerifyCheckOutOverride(t *testing.T) {
	out, err := run(t, strings.Replace(checkOutAttempt, "%s", "false", 1), "verify-checkout", "-")
	if err != nil {
		t.Fatal(err)
	}
	d := decision(t, out)
	if d.Reason != model.ReasonTooEarlyClockOut || !d.RequiresOverride {
		t.Fatalf("without override: %+v", d)
	}

	out, err = run(t, strings.Replace(checkOutAttempt, "%s", "true", 1), "verify-checkout", "-")
	if err != nil {
		t.Fatal(err)
	}
	d = decision(t, out)
	if !d.Accepted || d.WorkMinutes == nil || *d.WorkMinutes != 420 {
		t.Errorf("with override: %+v", d)
	}
}

func TestVerifyRejectsUnknownFields(t *testing.T) {
	if _, err := run(t, `{"userId":"u1","selfie":"..."}`, "verify-checkin", "-"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestVerifyMissingUser(t *testing.T) {
	_, err := run(t, `{"now":"2026-03-10T08:00:00Z"}`, "verify-checkin", "-")
	if err == nil {
		t.Error("expected invalid request error")
	}
}

func TestDistance(t *testing.T) {
	out, err := run(t, "", "distance", "52.0", "21.0", "52.009", "21.0")
	if err != nil {
		t.Fatal(err)
	}
	var res struct {
		DistanceMeters float64 `json:"distanceMeters"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.DistanceMeters-1000.75) > 1 {
		t.Errorf("distance = %v, want ~1000.75", res.DistanceMeters)
	}

	if _, err := run(t, "", "distance", "north", "21.0", "52.0", "21.0"); err == nil {
		t.Error("expected parse error")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind   string
		input  string
		reason model.ReasonCode
		late   int
	}{
		{"checkin", `{"now":"2026-03-10T08:20:00Z","schedule":{"startTime":"08:00","endTime":"17:00"}}`, model.ReasonAccepted, 20},
		{"checkin", `{"now":"2026-03-10T07:00:00Z","schedule":{"startTime":"08:00","endTime":"17:00"}}`, model.ReasonTooEarly, 0},
		{"checkin", `{"now":"2026-03-10T07:00:00Z","schedule":{"startTime":"08:00","endTime":"17:00","clockInAdvanceMinutes":90}}`, model.ReasonAccepted, 0},
		{"checkin", `{"now":"2026-03-10T09:00:00Z","schedule":{"startTime":"08:00","endTime":"17:00","isDayOff":true}}`, model.ReasonDayOff, 0},
		{"checkout", `{"now":"2026-03-10T12:00:00Z","schedule":{"startTime":"08:00","endTime":"17:00"}}`, model.ReasonTooEarlyClockOut, 0},
	}

	for _, tt := range tests {
		t.Run(tt.kind+" "+string(tt.reason), func(t *testing.T) {
			out, err := run(t, tt.input, "classify", tt.kind, "-")
			if err != nil {
				t.Fatal(err)
			}
			var res ClassifyResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatal(err)
			}
			if res.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", res.Reason, tt.reason)
			}
			if tt.late > 0 && (res.LateMinutes == nil || *res.LateMinutes != tt.late) {
				t.Errorf("LateMinutes = %v, want %d", res.LateMinutes, tt.late)
			}
		})
	}

	if _, err := run(t, `{}`, "classify", "lunch", "-"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEvaluateNoFace(t *testing.T) {
	var in AttemptInput
	if err := json.Unmarshal([]byte(checkInAttempt), &in); err != nil {
		t.Fatal(err)
	}
	in.Capture.FaceDetected = false

	d, err := Evaluate(context.Background(), in, false, core.Settings{DefaultSchedule: shift.DefaultSchedule()})
	if err != nil {
		t.Fatal(err)
	}
	if d.Reason != model.ReasonNoFaceDetected {
		t.Errorf("Reason = %s", d.Reason)
	}
}
