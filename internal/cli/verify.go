package cli

import (
	"context"
	"fmt"
	"time"

	"checkin.engine/internal/config"
	"checkin.engine/internal/core"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports/memory"
	"github.com/spf13/cobra"
)

func newVerifyCmd(checkOut bool) *cobra.Command {
	use, short := "verify-checkin <json-input>", "Evaluate a check-in attempt"
	if checkOut {
		use, short = "verify-checkout <json-input>", "Evaluate a check-out attempt"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + ` and print the decision.

<json-input> is a file path, or - to read standard input. The input carries
the attempt (userId, date, now, location, mode, override), the stored state
(enrollment, schedule, zones, record) and the precomputed face analysis of
the captured frame (capture.faceDetected, capture.descriptor).

Examples:
  # Evaluate a check-in described in a file
  verifier verify-checkin attempt.json

  # Confirm an early check-out from stdin
  jq '.override = true' attempt.json | verifier verify-checkout -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in AttemptInput
			if err := readJSON(args[0], cmd.InOrStdin(), &in); err != nil {
				return err
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			settings, err := cfg.EngineSettings()
			if err != nil {
				return err
			}

			d, err := Evaluate(cmd.Context(), in, checkOut, settings)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d, mustGetBool(cmd, "compact"))
		},
	}
}

// Evaluate seeds in-memory stores from in and runs one attempt through the engine.
func Evaluate(ctx context.Context, in AttemptInput, checkOut bool, base core.Settings) (model.VerificationDecision, error) {
	settings := base
	if err := in.Settings.apply(&settings); err != nil {
		return model.VerificationDecision{}, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	if in.Date == "" {
		// Seeded state is keyed by date, so resolve it the way the engine will.
		loc := settings.Location
		if loc == nil {
			loc = time.UTC
		}
		in.Date = in.Now.In(loc).Format(model.DateLayout)
	}

	attendance := memory.NewAttendanceStore()
	if in.Record != nil {
		rec := *in.Record
		if rec.UserID == "" {
			rec.UserID = in.UserID
		}
		if rec.Date == "" {
			rec.Date = in.Date
		}
		attendance.Put(rec)
	}

	enrollments := memory.NewEnrollmentStore()
	if in.Enrollment != nil {
		e := *in.Enrollment
		if e.UserID == "" {
			e.UserID = in.UserID
		}
		enrollments.Put(e)
	}

	schedules := memory.NewScheduleStore()
	if in.Schedule != nil {
		schedules.Put(in.UserID, in.Schedule.schedule(in.Date))
	}

	svc := core.NewAttendanceService(core.Deps{
		Attendance:  attendance,
		Enrollments: enrollments,
		Zones:       memory.NewZoneStore(in.Zones...),
		Schedules:   schedules,
		Face:        in.Capture.model(),
	}, settings)

	req := core.CheckInRequest{
		UserID: in.UserID,
		Date:   in.Date,
		// The analysis is precomputed; the frame only marks that a capture happened.
		Frame:    face.Frame{ID: "harness"},
		Location: in.Location,
		Now:      in.Now,
		Zone:     in.Zone,
		Mode:     in.Mode,
	}
	if checkOut {
		return svc.ProcessCheckOut(ctx, core.CheckOutRequest{CheckInRequest: req, Override: in.Override})
	}
	return svc.ProcessCheckIn(ctx, req)
}
