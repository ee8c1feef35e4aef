package core

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkin.engine/internal/capture"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/core/shift"
	"checkin.engine/internal/ports"
	"checkin.engine/internal/ports/memory"
	"checkin.engine/internal/ports/repository"
)

const day = "2026-03-10"

func at(hhmm string) time.Time {
	return model.MustTimeOfDay(hhmm).On(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
}

var office = model.GeofenceZone{ID: "hq", Name: "HQ", CenterLatitude: 52.2297, CenterLongitude: 21.0122, RadiusMeters: 100}

// metersPerDegree is the length of one degree of latitude on the haversine sphere.
const metersPerDegree = 6371000.0 * math.Pi / 180

func northOf(z model.GeofenceZone, meters float64) *model.LocationSample {
	return &model.LocationSample{
		Latitude:       z.CenterLatitude + meters/metersPerDegree,
		Longitude:      z.CenterLongitude,
		AccuracyMeters: 5,
	}
}

var (
	enrolled = face.Normalize([]float32{1, 0.2, 0, 0.1, 0, 0, 0.3, 0})
	stranger = face.Normalize([]float32{0, 0, 1, 0, 0.4, 0, 0, 1})
)

type fixture struct {
	svc         *AttendanceService
	attendance  *memory.AttendanceStore
	enrollments *memory.EnrollmentStore
	zones       *memory.ZoneStore
	schedules   *memory.ScheduleStore
	model       *face.StaticModel
	emitted     atomic.Int32
}

func newFixture(t *testing.T, mutate ...func(*Settings)) *fixture {
	t.Helper()
	f := &fixture{
		attendance:  memory.NewAttendanceStore(),
		enrollments: memory.NewEnrollmentStore(),
		zones:       memory.NewZoneStore(office),
		schedules:   memory.NewScheduleStore(),
		model: &face.StaticModel{
			Landmarks:  &face.Landmarks{Box: [4]float64{10, 10, 90, 110}, Confidence: 0.98},
			Descriptor: enrolled,
		},
	}
	f.enrollments.Put(model.EnrollmentRecord{UserID: "u1", Descriptor: enrolled, Active: true})

	settings := Settings{DefaultSchedule: shift.DefaultSchedule()}
	for _, m := range mutate {
		m(&settings)
	}

	applier := repository.NewCommandApplier(f.attendance)
	f.svc = NewAttendanceService(Deps{
		Attendance:  f.attendance,
		Enrollments: f.enrollments,
		Zones:       f.zones,
		Schedules:   f.schedules,
		Face:        f.model,
		Sink: ports.CommandSinkFunc(func(ctx context.Context, cmd model.AttendanceCommand) (string, error) {
			f.emitted.Add(1)
			return applier.Emit(ctx, cmd)
		}),
	}, settings)
	return f
}

func checkIn(now time.Time, loc *model.LocationSample) CheckInRequest {
	return CheckInRequest{
		UserID:   "u1",
		Date:     day,
		Frame:    face.Frame{Data: []byte("frame")},
		Location: loc,
		Now:      now,
	}
}

func checkOut(now time.Time, loc *model.LocationSample, override bool) CheckOutRequest {
	return CheckOutRequest{CheckInRequest: checkIn(now, loc), Override: override}
}

func mustCheckIn(t *testing.T, f *fixture, now time.Time) model.VerificationDecision {
	t.Helper()
	d, err := f.svc.ProcessCheckIn(context.Background(), checkIn(now, northOf(office, 10)))
	if err != nil {
		t.Fatalf("ProcessCheckIn: %v", err)
	}
	if !d.Accepted {
		t.Fatalf("check-in rejected: %+v", d)
	}
	return d
}

func TestCheckInAccepted(t *testing.T) {
	f := newFixture(t)
	d := mustCheckIn(t, f, at("08:05"))

	if d.State != model.StateClockedIn || d.Reason != model.ReasonAccepted {
		t.Errorf("got %s/%s", d.State, d.Reason)
	}
	if d.RecordID == "" {
		t.Error("RecordID not set")
	}
	if d.Score == nil || math.Abs(*d.Score-1) > 0.0001 {
		t.Errorf("Score = %v, want 1", d.Score)
	}
	if d.IsLate == nil || *d.IsLate || d.LateMinutes == nil || *d.LateMinutes != 0 {
		t.Errorf("lateness = %v/%v", d.IsLate, d.LateMinutes)
	}
	if d.DistanceMeters == nil || math.Abs(*d.DistanceMeters-10) > 0.5 || d.ZoneID != "hq" {
		t.Errorf("distance = %v zone = %q", d.DistanceMeters, d.ZoneID)
	}

	rec, _ := f.attendance.GetRecord(context.Background(), "u1", day)
	if rec == nil || rec.ClockIn == nil || !rec.ClockIn.At.Equal(at("08:05")) {
		t.Fatalf("stored record = %+v", rec)
	}
	if rec.ClockIn.Location == nil || math.Abs(rec.ClockIn.Score-1) > 0.0001 {
		t.Errorf("stored clock-in = %+v", rec.ClockIn)
	}
}

func TestCheckInLate(t *testing.T) {
	f := newFixture(t)
	d := mustCheckIn(t, f, at("08:20"))

	if d.IsLate == nil || !*d.IsLate || *d.LateMinutes != 20 {
		t.Errorf("lateness = %v/%v, want late by 20", d.IsLate, d.LateMinutes)
	}
	rec, _ := f.attendance.GetRecord(context.Background(), "u1", day)
	if !rec.IsLate || rec.LateMinutes != 20 {
		t.Errorf("stored lateness = %v/%d", rec.IsLate, rec.LateMinutes)
	}
}

func TestCheckInTwiceIsAlreadyClockedIn(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("08:00"))

	d, err := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:30"), northOf(office, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if d.Accepted || d.Reason != model.ReasonAlreadyClockedIn || d.State != model.StateClockedIn {
		t.Errorf("got %+v", d)
	}
	if f.attendance.Creates() != 1 {
		t.Errorf("records = %d, want 1", f.attendance.Creates())
	}
}

func TestCheckInGateOrder(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		now    time.Time
		loc    *model.LocationSample
		mode   model.LocationMode
		reason model.ReasonCode
	}{
		{
			name: "already clocked in wins over every other gate",
			setup: func(f *fixture) {
				f.attendance.Put(model.AttendanceRecord{UserID: "u1", Date: day, ClockIn: &model.ClockIn{At: at("08:00")}})
				f.schedules.Put("u1", model.ShiftSchedule{Date: day, IsDayOff: true})
				f.model.Landmarks = nil
			},
			now: at("08:00"), loc: &model.LocationSample{IsMocked: true},
			reason: model.ReasonAlreadyClockedIn,
		},
		{
			name: "day off before identity",
			setup: func(f *fixture) {
				f.schedules.Put("u1", model.ShiftSchedule{Date: day, StartTime: model.MustTimeOfDay("08:00"), EndTime: model.MustTimeOfDay("17:00"), IsDayOff: true, ToleranceMinutes: -1, ClockInAdvanceMinutes: -1})
				f.model.Landmarks = nil
			},
			now: at("08:00"), loc: northOf(office, 10),
			reason: model.ReasonDayOff,
		},
		{
			name:   "too early before identity",
			setup:  func(f *fixture) { f.model.Landmarks = nil },
			now:    at("07:29"), loc: northOf(office, 10),
			reason: model.ReasonTooEarly,
		},
		{
			name:   "no face before location",
			setup:  func(f *fixture) { f.model.Landmarks = nil },
			now:    at("08:00"), loc: &model.LocationSample{IsMocked: true},
			reason: model.ReasonNoFaceDetected,
		},
		{
			name:   "extraction failure",
			setup:  func(f *fixture) { f.model.ExtractErr = face.ErrExtraction },
			now:    at("08:00"), loc: northOf(office, 10),
			reason: model.ReasonExtractionFailed,
		},
		{
			name: "enrollment missing",
			setup: func(f *fixture) {
				f.enrollments.Put(model.EnrollmentRecord{UserID: "u1", Active: false})
			},
			now: at("08:00"), loc: northOf(office, 10),
			reason: model.ReasonEnrollmentMissing,
		},
		{
			name:   "different person",
			setup:  func(f *fixture) { f.model.Descriptor = stranger },
			now:    at("08:00"), loc: northOf(office, 10),
			reason: model.ReasonNoMatch,
		},
		{
			name: "spoofed location at zero distance",
			now:  at("08:00"), loc: &model.LocationSample{Latitude: office.CenterLatitude, Longitude: office.CenterLongitude, IsMocked: true},
			reason: model.ReasonLocationSpoofed,
		},
		{
			name: "spoofed location in remote mode",
			now:  at("08:00"), loc: &model.LocationSample{IsMocked: true}, mode: model.ModeRemote,
			reason: model.ReasonLocationSpoofed,
		},
		{
			name:   "no fix yet",
			now:    at("08:00"),
			reason: model.ReasonLocationPending,
		},
		{
			name:   "outside the zone",
			now:    at("08:00"), loc: northOf(office, 150),
			reason: model.ReasonOutOfRange,
		},
		{
			name: "no zones configured",
			setup: func(f *fixture) {
				f.zones = memory.NewZoneStore()
				f.svc.zones = f.zones
			},
			now: at("08:00"), loc: northOf(office, 10),
			reason: model.ReasonZoneNotConfigured,
		},
		{
			name:   "remote mode ignores distance",
			now:    at("08:00"), loc: northOf(office, 50000), mode: model.ModeRemote,
			reason: model.ReasonAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.attendance.Creates()

			req := checkIn(tt.now, tt.loc)
			req.Mode = tt.mode
			d, err := f.svc.ProcessCheckIn(context.Background(), req)
			if err != nil {
				t.Fatalf("ProcessCheckIn: %v", err)
			}
			if d.Reason != tt.reason {
				t.Fatalf("Reason = %s, want %s (%+v)", d.Reason, tt.reason, d)
			}

			wantCreates := before
			if tt.reason == model.ReasonAccepted {
				wantCreates++
			}
			if f.attendance.Creates() != wantCreates {
				t.Errorf("records created = %d, want %d", f.attendance.Creates(), wantCreates)
			}
		})
	}
}

func TestRejectionsCarryDetails(t *testing.T) {
	t.Run("too early", func(t *testing.T) {
		f := newFixture(t)
		d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("07:00"), northOf(office, 10)))
		if d.EarliestAllowed == nil || !d.EarliestAllowed.Equal(at("07:30")) {
			t.Errorf("EarliestAllowed = %v", d.EarliestAllowed)
		}
		if d.Retryable {
			t.Error("TOO_EARLY is not retryable")
		}
	})

	t.Run("no match", func(t *testing.T) {
		f := newFixture(t)
		f.model.Descriptor = stranger
		d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 10)))
		if d.Score == nil || *d.Score >= 0.40 || d.Threshold == nil || *d.Threshold != 0.40 {
			t.Errorf("score/threshold = %v/%v", d.Score, d.Threshold)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		f := newFixture(t)
		d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 150)))
		if d.DistanceMeters == nil || math.Abs(*d.DistanceMeters-150) > 0.5 {
			t.Errorf("DistanceMeters = %v, want 150", d.DistanceMeters)
		}
		if d.MaxDistanceMeters == nil || *d.MaxDistanceMeters != 100 {
			t.Errorf("MaxDistanceMeters = %v, want 100", d.MaxDistanceMeters)
		}
		if d.Score == nil {
			t.Error("identity score should accompany a location rejection")
		}
	})

	t.Run("pending is retryable", func(t *testing.T) {
		f := newFixture(t)
		d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), nil))
		if !d.Retryable {
			t.Error("LOCATION_PENDING should be retryable")
		}
	})
}

func TestCheckInSystemErrors(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"attendance store", func(f *fixture) { f.attendance.GetError = boom }},
		{"schedule store", func(f *fixture) { f.schedules.GetError = boom }},
		{"enrollment store", func(f *fixture) { f.enrollments.GetError = boom }},
		{"face model", func(f *fixture) { f.model.DetectErr = boom }},
		{"zone store", func(f *fixture) { f.zones.ListError = boom }},
		{"record insert", func(f *fixture) { f.attendance.CreateError = boom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			d, err := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 10)))
			if err != nil {
				t.Fatalf("infrastructure faults belong in the decision, got error %v", err)
			}
			if d.Reason != model.ReasonSystemError || !d.Retryable || d.Accepted {
				t.Errorf("got %+v, want retryable SYSTEM_ERROR", d)
			}
			if d.Cause == "" {
				t.Error("Cause should describe the fault")
			}
			if f.attendance.Creates() != 0 {
				t.Error("no record may be created on a fault")
			}
		})
	}
}

func TestDuplicateFromStoreIsAlreadyClockedIn(t *testing.T) {
	f := newFixture(t)
	f.svc.sink = ports.CommandSinkFunc(func(context.Context, model.AttendanceCommand) (string, error) {
		return "", repository.ErrDuplicateRecord
	})

	d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 10)))
	if d.Reason != model.ReasonAlreadyClockedIn || d.State != model.StateClockedIn {
		t.Errorf("got %+v", d)
	}
}

func TestConcurrentCheckIns(t *testing.T) {
	f := newFixture(t)

	const attempts = 50
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		already  atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 10)))
			if err != nil {
				t.Error(err)
				return
			}
			switch d.Reason {
			case model.ReasonAccepted:
				accepted.Add(1)
			case model.ReasonAlreadyClockedIn:
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 || already.Load() != attempts-1 {
		t.Errorf("accepted = %d, already = %d", accepted.Load(), already.Load())
	}
	if f.attendance.Creates() != 1 || f.emitted.Load() != 1 {
		t.Errorf("records = %d, commands = %d; want 1 and 1", f.attendance.Creates(), f.emitted.Load())
	}
	if f.svc.locks.size() != 0 {
		t.Errorf("%d lock entries leaked", f.svc.locks.size())
	}
}

func TestCheckOutWithoutCheckIn(t *testing.T) {
	f := newFixture(t)
	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("17:00"), northOf(office, 10), false))
	if d.Reason != model.ReasonNotClockedIn || d.State != model.StateNotStarted {
		t.Errorf("got %+v", d)
	}
	if f.emitted.Load() != 0 {
		t.Error("no command may be emitted")
	}
}

func TestCheckOutEarlyRequiresOverride(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("08:00"))

	// 90 minutes before the 17:00 end.
	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("15:30"), northOf(office, 10), false))
	if d.Accepted || d.Reason != model.ReasonTooEarlyClockOut {
		t.Fatalf("got %+v, want TOO_EARLY_CLOCK_OUT", d)
	}
	if !d.RequiresOverride || d.Retryable {
		t.Errorf("RequiresOverride = %v, Retryable = %v", d.RequiresOverride, d.Retryable)
	}
	if state, _ := f.attendance.GetState(context.Background(), "u1", day); state != model.StateClockedIn {
		t.Errorf("state = %s after soft rejection", state)
	}

	d, _ = f.svc.ProcessCheckOut(context.Background(), checkOut(at("15:30"), northOf(office, 10), true))
	if !d.Accepted || d.State != model.StateClockedOut {
		t.Fatalf("override: got %+v", d)
	}
	if d.WorkMinutes == nil || *d.WorkMinutes != 450 {
		t.Errorf("WorkMinutes = %v, want 450", d.WorkMinutes)
	}

	rec, _ := f.attendance.GetRecord(context.Background(), "u1", day)
	if rec.WorkMinutes != 450 || rec.ClockOut == nil || !rec.ClockOut.At.Equal(at("15:30")) {
		t.Errorf("stored record = %+v", rec)
	}
}

func TestCheckOutOnTime(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("08:10"))

	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("16:45"), northOf(office, 10), false))
	if !d.Accepted || d.RequiresOverride {
		t.Fatalf("got %+v", d)
	}
	if *d.WorkMinutes != 515 {
		t.Errorf("WorkMinutes = %d, want 515", *d.WorkMinutes)
	}
}

func TestCheckOutIsTerminal(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("08:00"))
	if d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("17:00"), northOf(office, 10), false)); !d.Accepted {
		t.Fatalf("first check-out: %+v", d)
	}

	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("17:05"), northOf(office, 10), false))
	if d.Reason != model.ReasonNotClockedIn || d.State != model.StateClockedOut {
		t.Errorf("second check-out: %+v", d)
	}
	d, _ = f.svc.ProcessCheckIn(context.Background(), checkIn(at("17:10"), northOf(office, 10)))
	if d.Reason != model.ReasonAlreadyClockedIn || d.State != model.StateClockedOut {
		t.Errorf("check-in after check-out: %+v", d)
	}
	if f.emitted.Load() != 2 {
		t.Errorf("commands = %d, want 2", f.emitted.Load())
	}
}

func TestCheckOutGateOrder(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		now    time.Time
		loc    *model.LocationSample
		reason model.ReasonCode
	}{
		{"identity before location", func(f *fixture) { f.model.Descriptor = stranger }, at("12:00"), northOf(office, 500), model.ReasonNoMatch},
		{"location before early warning", nil, at("12:00"), northOf(office, 500), model.ReasonOutOfRange},
		{"spoofed", nil, at("17:00"), &model.LocationSample{IsMocked: true}, model.ReasonLocationSpoofed},
		{"early warning last", nil, at("12:00"), northOf(office, 10), model.ReasonTooEarlyClockOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mustCheckIn(t, f, at("08:00"))
			if tt.setup != nil {
				tt.setup(f)
			}

			d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(tt.now, tt.loc, false))
			if d.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.reason)
			}
			if f.emitted.Load() != 1 {
				t.Errorf("commands = %d, want only the check-in", f.emitted.Load())
			}
		})
	}
}

func TestCheckOutBeforeCheckInIsSystemError(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("09:00"))

	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(at("08:30"), northOf(office, 10), true))
	if d.Reason != model.ReasonSystemError {
		t.Errorf("got %+v", d)
	}
}

func TestOvernightShift(t *testing.T) {
	f := newFixture(t)
	f.schedules.Put("u1", model.ShiftSchedule{
		Date:                  day,
		StartTime:             model.MustTimeOfDay("22:00"),
		EndTime:               model.MustTimeOfDay("06:00"),
		ToleranceMinutes:      -1,
		ClockInAdvanceMinutes: -1,
	})

	mustCheckIn(t, f, at("21:50"))

	next := at("05:30").AddDate(0, 0, 1)
	d, _ := f.svc.ProcessCheckOut(context.Background(), checkOut(next, northOf(office, 10), false))
	if !d.Accepted {
		t.Fatalf("got %+v", d)
	}
	if *d.WorkMinutes != 460 {
		t.Errorf("WorkMinutes = %d, want 460", *d.WorkMinutes)
	}
}

func TestNearestZoneIsUsed(t *testing.T) {
	f := newFixture(t)
	annex := model.GeofenceZone{ID: "annex", CenterLatitude: office.CenterLatitude + 0.01, CenterLongitude: office.CenterLongitude, RadiusMeters: 50}
	f.zones.Add(annex)

	d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(annex, 80)))
	if d.ZoneID != "annex" || d.Reason != model.ReasonOutOfRange {
		t.Errorf("got zone %q reason %s", d.ZoneID, d.Reason)
	}
}

func TestPinnedZoneOverridesNearest(t *testing.T) {
	f := newFixture(t)
	pinned := model.GeofenceZone{ID: "site-b", CenterLatitude: 50.0, CenterLongitude: 19.9, RadiusMeters: 100}

	req := checkIn(at("08:00"), northOf(pinned, 20))
	req.Zone = &pinned
	d, _ := f.svc.ProcessCheckIn(context.Background(), req)
	if !d.Accepted || d.ZoneID != "site-b" {
		t.Errorf("got %+v", d)
	}
}

func TestDefaultZoneRadius(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.DefaultZoneRadius = 200 })
	f.zones = memory.NewZoneStore(model.GeofenceZone{ID: "yard", CenterLatitude: 52.0, CenterLongitude: 21.0})
	f.svc.zones = f.zones

	d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(model.GeofenceZone{CenterLatitude: 52.0, CenterLongitude: 21.0}, 150)))
	if !d.Accepted || *d.MaxDistanceMeters != 200 {
		t.Errorf("got %+v", d)
	}
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t)

	cases := []CheckInRequest{
		{Date: day},
		{UserID: "u1", Date: "10/03/2026"},
		{UserID: "u1", Date: day, Mode: "airborne"},
	}
	for _, req := range cases {
		if _, err := f.svc.ProcessCheckIn(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: err = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestDateMustBeCurrentWorkingDay(t *testing.T) {
	overnight := model.ShiftSchedule{
		Date:                  day,
		StartTime:             model.MustTimeOfDay("22:00"),
		EndTime:               model.MustTimeOfDay("06:00"),
		ToleranceMinutes:      -1,
		ClockInAdvanceMinutes: -1,
	}
	nextDay := func(hhmm string) time.Time { return at(hhmm).AddDate(0, 0, 1) }

	tests := []struct {
		name     string
		schedule *model.ShiftSchedule
		checkOut bool
		now      time.Time
		wantErr  bool
	}{
		{"same day", nil, false, at("08:00"), false},
		{"days in the past", nil, false, at("09:00").AddDate(0, 0, 10), true},
		{"future day", nil, false, at("09:00").AddDate(0, 0, -1), true},
		{"yesterday day shift", nil, false, nextDay("08:00"), true},
		{"yesterday overnight shift running", &overnight, false, nextDay("01:00"), false},
		{"yesterday overnight shift over", &overnight, false, nextDay("06:30"), true},
		{"check-out after overnight end", &overnight, true, nextDay("06:30"), false},
		{"check-out yesterday day shift", nil, true, nextDay("08:00"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.schedule != nil {
				f.schedules.Put("u1", *tt.schedule)
			}

			var err error
			if tt.checkOut {
				f.attendance.Put(model.AttendanceRecord{ID: "rec-1", UserID: "u1", Date: day, ClockIn: &model.ClockIn{At: at("22:00")}})
				_, err = f.svc.ProcessCheckOut(context.Background(), checkOut(tt.now, northOf(office, 10), true))
			} else {
				_, err = f.svc.ProcessCheckIn(context.Background(), checkIn(tt.now, northOf(office, 10)))
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("err = %v, want ErrInvalidRequest", err)
				}
				if f.emitted.Load() != 0 {
					t.Error("invalid date must not emit a command")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWorkingDayLookupFailureIsSystemError(t *testing.T) {
	f := newFixture(t)
	f.schedules.GetError = errors.New("schedule service down")

	d, err := f.svc.ProcessCheckIn(context.Background(), checkIn(at("01:00").AddDate(0, 0, 1), northOf(office, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if d.Reason != model.ReasonSystemError || !d.Retryable {
		t.Errorf("got %+v, want retryable SYSTEM_ERROR", d)
	}
}

func TestLockWaitHonorsContext(t *testing.T) {
	f := newFixture(t)
	unlock, err := f.svc.locks.Lock(context.Background(), "u1|"+day)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan model.VerificationDecision, 1)
	go func() {
		d, _ := f.svc.ProcessCheckIn(ctx, checkIn(at("08:00"), northOf(office, 10)))
		done <- d
	}()

	select {
	case d := <-done:
		if d.Reason != model.ReasonSystemError || !d.Retryable {
			t.Errorf("got %+v, want retryable SYSTEM_ERROR", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessCheckIn still blocked after its context expired")
	}

	unlock()
	if n := f.svc.locks.size(); n != 0 {
		t.Errorf("lock entries = %d, want 0", n)
	}
	if f.emitted.Load() != 0 {
		t.Error("abandoned attempt must not emit a command")
	}

	// The key is usable again.
	if d, _ := f.svc.ProcessCheckIn(context.Background(), checkIn(at("08:00"), northOf(office, 10))); !d.Accepted {
		t.Errorf("after release: %+v", d)
	}
}

func TestDateDefaultsToServiceTimezone(t *testing.T) {
	warsaw := time.FixedZone("CET", 3600)
	f := newFixture(t, func(s *Settings) { s.Location = warsaw })

	// 07:40 UTC is 08:40 local: on the local calendar day and 40 minutes late.
	d, err := f.svc.ProcessCheckIn(context.Background(), CheckInRequest{
		UserID:   "u1",
		Frame:    face.Frame{Data: []byte("frame")},
		Location: northOf(office, 10),
		Now:      time.Date(2026, 3, 10, 7, 40, 0, 0, time.UTC),
	})
	if err != nil || !d.Accepted {
		t.Fatalf("got %+v, %v", d, err)
	}
	if *d.LateMinutes != 40 {
		t.Errorf("LateMinutes = %d, want 40", *d.LateMinutes)
	}
	if rec, _ := f.attendance.GetRecord(context.Background(), "u1", day); rec == nil {
		t.Error("record not stored under the local date")
	}
}

func TestCaptureCheckInTimeout(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.AcquireTimeout = 20 * time.Millisecond })

	d, err := f.svc.CaptureCheckIn(context.Background(), CaptureRequest{
		UserID: "u1",
		Date:   day,
		Locations: capture.LocationFunc(func(ctx context.Context) (*model.LocationSample, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		Frames: capture.FrameFunc(func(context.Context) (face.Frame, error) { return face.Frame{}, nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Reason != model.ReasonAcquisitionTimeout || !d.Retryable {
		t.Errorf("got %+v, want retryable ACQUISITION_TIMEOUT", d)
	}
	if f.emitted.Load() != 0 {
		t.Error("timeout must not emit a command")
	}
}

func TestCaptureCheckInWipesFrame(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return at("08:00") }

	pixels := []byte{9, 9, 9, 9}
	d, err := f.svc.CaptureCheckIn(context.Background(), CaptureRequest{
		UserID: "u1",
		Date:   day,
		Locations: capture.LocationFunc(func(context.Context) (*model.LocationSample, error) {
			return northOf(office, 10), nil
		}),
		Frames: capture.FrameFunc(func(context.Context) (face.Frame, error) {
			return face.Frame{Data: pixels}, nil
		}),
	})
	if err != nil || !d.Accepted {
		t.Fatalf("got %+v, %v", d, err)
	}
	for i, b := range pixels {
		if b != 0 {
			t.Fatalf("pixel %d not wiped", i)
		}
	}
}

func TestCaptureCheckOutCarriesOverride(t *testing.T) {
	f := newFixture(t)
	mustCheckIn(t, f, at("08:00"))
	f.svc.now = func() time.Time { return at("15:00") }

	req := CaptureRequest{
		UserID: "u1",
		Date:   day,
		Locations: capture.LocationFunc(func(context.Context) (*model.LocationSample, error) {
			return northOf(office, 10), nil
		}),
		Frames: capture.FrameFunc(func(context.Context) (face.Frame, error) {
			return face.Frame{Data: []byte("frame")}, nil
		}),
	}
	d, err := f.svc.CaptureCheckOut(context.Background(), req)
	if err != nil || d.Reason != model.ReasonTooEarlyClockOut {
		t.Fatalf("without override: %+v, %v", d, err)
	}

	req.Override = true
	d, err = f.svc.CaptureCheckOut(context.Background(), req)
	if err != nil || !d.Accepted {
		t.Fatalf("with override: %+v, %v", d, err)
	}
	if *d.WorkMinutes != 420 {
		t.Errorf("WorkMinutes = %d, want 420", *d.WorkMinutes)
	}
}

func TestLiveSessionIsAdvisoryOnly(t *testing.T) {
	f := newFixture(t)
	frames := make(chan face.Frame)
	session, err := f.svc.StartLiveSession(context.Background(), "u1", frames)
	if err != nil {
		t.Fatal(err)
	}

	ready := false
	for i := 0; i < 5 && !ready; i++ {
		frames <- face.Frame{Data: []byte{1, 2, 3}}
		select {
		case st := <-session.States():
			ready = st.Ready
		case <-time.After(time.Second):
			t.Fatal("no advisory state")
		}
	}
	if !ready {
		t.Error("matching face should make the preview ready")
	}

	// The session frame feeds the authoritative call through the capture flow.
	f.svc.now = func() time.Time { return at("08:00") }
	d, _ := f.svc.CaptureCheckIn(context.Background(), CaptureRequest{
		UserID: "u1",
		Date:   day,
		Locations: capture.LocationFunc(func(context.Context) (*model.LocationSample, error) {
			return northOf(office, 10), nil
		}),
		Frames: SessionFrames(session),
	})
	session.Close()

	if !d.Accepted {
		t.Errorf("capture from session: %+v", d)
	}
	if f.emitted.Load() != 1 {
		t.Errorf("commands = %d; only the explicit capture may emit", f.emitted.Load())
	}
	if _, ok := session.Snapshot(); ok {
		t.Error("closed session must not retain a frame")
	}
}

func TestLiveDetect(t *testing.T) {
	f := newFixture(t)
	lm, err := f.svc.LiveDetect(context.Background(), face.Frame{Data: []byte{1}})
	if err != nil || lm == nil || lm.Confidence != 0.98 {
		t.Errorf("got %+v, %v", lm, err)
	}
	if f.emitted.Load() != 0 {
		t.Error("live detection must not emit")
	}
}
