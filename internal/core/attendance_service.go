package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/location"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/core/shift"
	"checkin.engine/internal/ports"
	"checkin.engine/internal/ports/repository"
	"checkin.engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidRequest is returned for requests that cannot be evaluated at all.
var ErrInvalidRequest = errors.New("invalid attendance request")

// Deps are the collaborators of the attendance service.
type Deps struct {
	Attendance  repository.AttendanceStore
	Enrollments repository.EnrollmentStore
	Zones       repository.GeofenceStore
	Schedules   repository.ScheduleStore
	Face        face.Model
	// Sink applies the command an accepted decision produces.
	Sink ports.CommandSink
}

// Settings tune the engine.
type Settings struct {
	Face            face.Settings
	Live            face.LiveSettings
	DefaultSchedule model.ShiftSchedule
	Policy          shift.Policy
	Mode            model.LocationMode
	// DefaultZoneRadius replaces the radius of zones stored without one.
	DefaultZoneRadius float64
	// Location is the time zone that calendar dates and shift times are expressed in.
	Location       *time.Location
	AcquireTimeout time.Duration
}

// AttendanceService is the attendance orchestrator. It evaluates every gate
// for one attempt and emits at most one command.
type AttendanceService struct {
	attendance  repository.AttendanceStore
	enrollments repository.EnrollmentStore
	zones       repository.GeofenceStore
	schedules   *shift.Resolver
	model       face.Model
	verifier    *face.Verifier
	sink        ports.CommandSink

	policy         shift.Policy
	live           face.LiveSettings
	mode           model.LocationMode
	defaultRadius  float64
	loc            *time.Location
	acquireTimeout time.Duration

	locks  *keyLock
	now    func() time.Time
	tracer trace.Tracer
}

// NewAttendanceService wires the orchestrator. When deps.Sink is nil commands
// are applied directly to deps.Attendance.
func NewAttendanceService(deps Deps, s Settings) *AttendanceService {
	if s.Mode == "" {
		s.Mode = model.ModeOnSite
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	sink := deps.Sink
	if sink == nil {
		sink = repository.NewCommandApplier(deps.Attendance)
	}

	return &AttendanceService{
		attendance:     deps.Attendance,
		enrollments:    deps.Enrollments,
		zones:          deps.Zones,
		schedules:      shift.NewResolver(deps.Schedules, s.DefaultSchedule),
		model:          deps.Face,
		verifier:       face.NewVerifier(deps.Face, deps.Face, s.Face),
		sink:           sink,
		policy:         s.Policy,
		live:           s.Live,
		mode:           s.Mode,
		defaultRadius:  s.DefaultZoneRadius,
		loc:            s.Location,
		acquireTimeout: s.AcquireTimeout,
		locks:          newKeyLock(),
		now:            time.Now,
		tracer:         otel.Tracer("attendance-engine"),
	}
}

// CheckInRequest is one check-in attempt. Frame and Location are the samples
// captured at the moment the user pressed the button.
type CheckInRequest struct {
	UserID string
	// Date defaults to the calendar day of Now in the service time zone.
	Date     string
	Frame    face.Frame
	Location *model.LocationSample
	// Now defaults to the service clock.
	Now time.Time
	// Zone pins the geofence; when nil the nearest active zone is used.
	Zone *model.GeofenceZone
	Mode model.LocationMode
}

type CheckOutRequest struct {
	CheckInRequest
	// Override confirms an early clock-out.
	Override bool
}

// attempt is the normalized form of a request.
type attempt struct {
	userID   string
	date     string
	frame    face.Frame
	location *model.LocationSample
	now      time.Time
	zone     *model.GeofenceZone
	mode     model.LocationMode
}

func (s *AttendanceService) normalize(r CheckInRequest) (attempt, error) {
	if r.UserID == "" {
		return attempt{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	a := attempt{
		userID:   r.UserID,
		date:     r.Date,
		frame:    r.Frame,
		location: r.Location,
		now:      r.Now,
		zone:     r.Zone,
		mode:     r.Mode,
	}
	if a.now.IsZero() {
		a.now = s.now()
	}
	a.now = a.now.In(s.loc)
	if a.date == "" {
		a.date = a.now.Format(model.DateLayout)
	} else if _, err := time.ParseInLocation(model.DateLayout, a.date, s.loc); err != nil {
		return attempt{}, fmt.Errorf("%w: date %q: %v", ErrInvalidRequest, a.date, err)
	}
	if a.mode == "" {
		a.mode = s.mode
	}
	if a.mode != model.ModeOnSite && a.mode != model.ModeRemote {
		return attempt{}, fmt.Errorf("%w: unknown location mode %q", ErrInvalidRequest, a.mode)
	}
	return a, nil
}

// ProcessCheckIn evaluates a check-in attempt. Rejections and infrastructure
// faults are reported in the decision; the error is only set for requests
// that cannot be evaluated.
func (s *AttendanceService) ProcessCheckIn(ctx context.Context, req CheckInRequest) (model.VerificationDecision, error) {
	a, err := s.normalize(req)
	if err != nil {
		return model.VerificationDecision{}, err
	}

	ctx, span := s.startSpan(ctx, "engine.check_in", a)
	defer span.End()

	unlock, d, err := s.admit(ctx, a, false)
	if err != nil {
		return d, err
	}
	if unlock == nil {
		s.finish(ctx, span, "Check-in decision", d)
		return d, nil
	}
	defer unlock()

	d = s.checkIn(ctx, a)
	s.finish(ctx, span, "Check-in decision", d)
	return d, nil
}

// admit bounds the working day of a and takes its key lock. A nil unlock
// means the attempt ends here with d, or with err for an invalid request.
func (s *AttendanceService) admit(ctx context.Context, a attempt, checkOut bool) (func(), model.VerificationDecision, error) {
	if err := s.checkDate(ctx, a, checkOut); err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, model.VerificationDecision{}, err
		}
		return nil, model.SystemError("", fmt.Errorf("resolve working day: %w", err)), nil
	}

	unlock, err := s.locks.Lock(ctx, a.userID+"|"+a.date)
	if err != nil {
		return nil, model.SystemError("", fmt.Errorf("wait for concurrent attempt: %w", err)), nil
	}
	return unlock, model.VerificationDecision{}, nil
}

// checkDate accepts the current calendar day, and the previous one only while
// its overnight shift is still running. A check-out may close that shift
// until the end of the day it finishes on.
func (s *AttendanceService) checkDate(ctx context.Context, a attempt, checkOut bool) error {
	today := a.now.Format(model.DateLayout)
	if a.date == today {
		return nil
	}
	if a.date != a.now.AddDate(0, 0, -1).Format(model.DateLayout) {
		return fmt.Errorf("%w: date %s is not the working day of %s", ErrInvalidRequest, a.date, today)
	}

	schedule, err := s.schedules.ResolveSchedule(ctx, a.userID, a.date)
	if err != nil {
		return err
	}
	day, err := time.ParseInLocation(model.DateLayout, a.date, s.loc)
	if err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidRequest, a.date, err)
	}
	_, end := schedule.Window(day)
	if end.Format(model.DateLayout) != today || (!checkOut && !a.now.Before(end)) {
		return fmt.Errorf("%w: shift of %s is over", ErrInvalidRequest, a.date)
	}
	return nil
}

func (s *AttendanceService) checkIn(ctx context.Context, a attempt) model.VerificationDecision {
	state, err := s.attendance.GetState(ctx, a.userID, a.date)
	if err != nil {
		return model.SystemError("", fmt.Errorf("load attendance state: %w", err))
	}
	if state != model.StateNotStarted {
		return model.Reject(model.ReasonAlreadyClockedIn, state)
	}

	schedule, err := s.schedules.ResolveSchedule(ctx, a.userID, a.date)
	if err != nil {
		return model.SystemError(state, err)
	}
	timing := s.policy.ClassifyCheckIn(a.now, schedule)
	if !timing.Accepted {
		d := model.Reject(timing.Reason, state)
		timing.Apply(&d)
		return d
	}

	identity, d, ok := s.verifyIdentity(ctx, a, state)
	if !ok {
		return d
	}

	place, d, ok := s.validateLocation(ctx, a, state)
	if !ok {
		identity.Apply(&d)
		return d
	}

	record := model.AttendanceRecord{
		UserID: a.userID,
		Date:   a.date,
		ClockIn: &model.ClockIn{
			At:       a.now,
			Location: a.location,
			Score:    identity.Score,
		},
		IsLate:      timing.IsLate,
		LateMinutes: timing.LateMinutes,
		SyncStatus:  model.SyncPending,
	}
	id, err := s.sink.Emit(ctx, model.AttendanceCommand{
		ID:       uuid.NewString(),
		Kind:     model.CommandCreateClockIn,
		UserID:   a.userID,
		Date:     a.date,
		Record:   &record,
		IssuedAt: a.now,
	})
	if errors.Is(err, repository.ErrDuplicateRecord) {
		// Another process won the race past the state check.
		return model.Reject(model.ReasonAlreadyClockedIn, model.StateClockedIn)
	}
	if err != nil {
		return model.SystemError(state, fmt.Errorf("create clock-in: %w", err))
	}

	d = model.Accept(model.StateClockedIn)
	d.RecordID = id
	timing.Apply(&d)
	identity.Apply(&d)
	place.Apply(&d)
	return d
}

// ProcessCheckOut evaluates a check-out attempt.
func (s *AttendanceService) ProcessCheckOut(ctx context.Context, req CheckOutRequest) (model.VerificationDecision, error) {
	a, err := s.normalize(req.CheckInRequest)
	if err != nil {
		return model.VerificationDecision{}, err
	}

	ctx, span := s.startSpan(ctx, "engine.check_out", a)
	defer span.End()
	span.SetAttributes(attribute.Bool("app.override", req.Override))

	unlock, d, err := s.admit(ctx, a, true)
	if err != nil {
		return d, err
	}
	if unlock == nil {
		s.finish(ctx, span, "Check-out decision", d)
		return d, nil
	}
	defer unlock()

	d = s.checkOut(ctx, a, req.Override)
	s.finish(ctx, span, "Check-out decision", d)
	return d, nil
}

func (s *AttendanceService) checkOut(ctx context.Context, a attempt, override bool) model.VerificationDecision {
	record, err := s.attendance.GetRecord(ctx, a.userID, a.date)
	if err != nil {
		return model.SystemError("", fmt.Errorf("load attendance record: %w", err))
	}
	state := record.State()
	if state != model.StateClockedIn {
		return model.Reject(model.ReasonNotClockedIn, state)
	}

	identity, d, ok := s.verifyIdentity(ctx, a, state)
	if !ok {
		return d
	}

	place, d, ok := s.validateLocation(ctx, a, state)
	if !ok {
		identity.Apply(&d)
		return d
	}

	schedule, err := s.schedules.ResolveSchedule(ctx, a.userID, a.date)
	if err != nil {
		return model.SystemError(state, err)
	}
	timing := s.policy.ClassifyCheckOut(a.now, schedule)
	if timing.Soft && !override {
		d := model.Reject(timing.Reason, state)
		timing.Apply(&d)
		identity.Apply(&d)
		place.Apply(&d)
		return d
	}

	worked := a.now.Sub(record.ClockIn.At)
	if worked < 0 {
		return model.SystemError(state, fmt.Errorf("clock-out at %s precedes clock-in at %s",
			a.now.Format(time.RFC3339), record.ClockIn.At.Format(time.RFC3339)))
	}
	fields := model.ClockOutFields{
		ClockOut:    model.ClockOut{At: a.now, Location: a.location},
		WorkMinutes: int(worked / time.Minute),
	}

	id, err := s.sink.Emit(ctx, model.AttendanceCommand{
		ID:       uuid.NewString(),
		Kind:     model.CommandUpdateClockOut,
		UserID:   a.userID,
		Date:     a.date,
		RecordID: record.ID,
		ClockOut: &fields,
		IssuedAt: a.now,
	})
	if errors.Is(err, repository.ErrNotFound) {
		// Closed by another process since the state check.
		return model.Reject(model.ReasonNotClockedIn, model.StateClockedOut)
	}
	if err != nil {
		return model.SystemError(state, fmt.Errorf("update clock-out: %w", err))
	}

	d = model.Accept(model.StateClockedOut)
	d.RecordID = id
	d.WorkMinutes = model.Int(fields.WorkMinutes)
	identity.Apply(&d)
	place.Apply(&d)
	return d
}

// verifyIdentity runs the face gate. ok is false when d holds the final decision.
func (s *AttendanceService) verifyIdentity(ctx context.Context, a attempt, state model.AttendanceState) (face.Outcome, model.VerificationDecision, bool) {
	enrollment, err := s.enrollments.GetActiveEnrollment(ctx, a.userID)
	if err != nil {
		return face.Outcome{}, model.SystemError(state, fmt.Errorf("load enrollment: %w", err)), false
	}

	out, err := s.verifier.Verify(ctx, a.frame, enrollment)
	if err != nil {
		return out, model.SystemError(state, err), false
	}
	if !out.Accepted {
		d := model.Reject(out.Reason, state)
		out.Apply(&d)
		return out, d, false
	}
	return out, model.VerificationDecision{}, true
}

// validateLocation runs the geofence gate, resolving the nearest active zone
// when none was pinned.
func (s *AttendanceService) validateLocation(ctx context.Context, a attempt, state model.AttendanceState) (location.Outcome, model.VerificationDecision, bool) {
	zone := a.zone
	if zone == nil && a.mode == model.ModeOnSite && a.location != nil && !a.location.IsMocked {
		zones, err := s.zones.ListActiveZones(ctx)
		if err != nil {
			return location.Outcome{}, model.SystemError(state, fmt.Errorf("list zones: %w", err)), false
		}
		zone, _ = location.NearestZone(a.location.Coordinate(), zones)
	}
	if zone != nil && zone.RadiusMeters <= 0 && s.defaultRadius > 0 {
		z := *zone
		z.RadiusMeters = s.defaultRadius
		zone = &z
	}

	out := location.Validate(a.location, zone, a.mode)
	if !out.Accepted() {
		d := model.Reject(out.Reason, state)
		out.Apply(&d)
		return out, d, false
	}
	return out, model.VerificationDecision{}, true
}

// LiveDetect runs advisory landmark detection on a single frame.
func (s *AttendanceService) LiveDetect(ctx context.Context, frame face.Frame) (*face.Landmarks, error) {
	return s.verifier.LiveDetect(ctx, frame)
}

// StartLiveSession starts the advisory preview for userID over frames. The
// session can only report state; the caller must Close it.
func (s *AttendanceService) StartLiveSession(ctx context.Context, userID string, frames <-chan face.Frame) (*face.Session, error) {
	var enrolled model.FaceDescriptor
	enrollment, err := s.enrollments.GetActiveEnrollment(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment != nil && enrollment.Active {
		enrolled = enrollment.Descriptor
	}
	monitor := face.NewLiveMonitor(s.model, s.model, enrolled, s.live)
	return face.StartSession(ctx, monitor, frames), nil
}

func (s *AttendanceService) startSpan(ctx context.Context, name string, a attempt) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("app.user_id", a.userID),
		attribute.String("app.work_date", a.date),
		attribute.String("app.location_mode", string(a.mode)),
	))
	ctx = logger.EnrichContextWithLogger(ctx)
	ctx = logger.WithAttempt(ctx, a.userID, a.date)
	return ctx, span
}

func (s *AttendanceService) finish(ctx context.Context, span trace.Span, msg string, d model.VerificationDecision) {
	span.SetAttributes(
		attribute.Bool("app.accepted", d.Accepted),
		attribute.String("app.reason", string(d.Reason)),
	)

	event := log.Ctx(ctx).Info()
	if d.Reason == model.ReasonSystemError {
		span.SetStatus(codes.Error, d.Cause)
		event = log.Ctx(ctx).Error().Str("cause", d.Cause)
	}
	event.Str("reason", string(d.Reason)).
		Bool("accepted", d.Accepted).
		Str("state", string(d.State)).
		Msg(msg)
}
