package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"checkin.engine/internal/config"
	"checkin.engine/internal/core/location"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/core/shift"
	"checkin.engine/internal/ports/memory"
	"github.com/spf13/cobra"
)

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance <lat1> <lon1> <lat2> <lon2>",
		Short: "Print the great-circle distance in meters between two coordinates",
		Example: `  verifier distance 52.2297 21.0122 52.2306 21.0122`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [4]float64
			for i, a := range args {
				f, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				v[i] = f
			}
			d := location.DistanceMeters(
				model.Coordinate{Latitude: v[0], Longitude: v[1]},
				model.Coordinate{Latitude: v[2], Longitude: v[3]},
			)
			return writeJSON(cmd.OutOrStdout(), map[string]float64{"distanceMeters": d}, mustGetBool(cmd, "compact"))
		},
	}
}

// ClassifyResult is the time-gate verdict printed by classify.
type ClassifyResult struct {
	Accepted         bool             `json:"accepted"`
	Reason           model.ReasonCode `json:"reasonCode"`
	RequiresOverride bool             `json:"requiresOverride,omitempty"`
	EarliestAllowed  *time.Time       `json:"earliestAllowed,omitempty"`
	IsLate           *bool            `json:"isLate,omitempty"`
	LateMinutes      *int             `json:"lateMinutes,omitempty"`
	ShiftStart       time.Time        `json:"shiftStart"`
	ShiftEnd         time.Time        `json:"shiftEnd"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <checkin|checkout> <json-input>",
		Short: "Classify a timestamp against a shift schedule",
		Long: `Classify runs only the shift policy: the check-in window and lateness,
or the early check-out warning. The input is {"now": ..., "date": ...,
"schedule": {...}}; omitted tolerance and advance minutes take the
configured defaults.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"checkin", "checkout"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var in ClassifyInput
			if err := readJSON(args[1], cmd.InOrStdin(), &in); err != nil {
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

			res, err := Classify(cmd.Context(), args[0], in, settings.DefaultSchedule, settings.Policy)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res, mustGetBool(cmd, "compact"))
		},
	}
}

// Classify evaluates in under policy; omitted schedule fields come from defaults.
func Classify(ctx context.Context, kind string, in ClassifyInput, defaults model.ShiftSchedule, policy shift.Policy) (ClassifyResult, error) {
	store := memory.NewScheduleStore()
	store.Put("", in.Schedule.schedule(in.Date))
	sched, err := shift.NewResolver(store, defaults).ResolveSchedule(ctx, "", in.Date)
	if err != nil {
		return ClassifyResult{}, err
	}

	var out shift.Outcome
	switch kind {
	case "checkin":
		out = policy.ClassifyCheckIn(in.Now, sched)
	case "checkout":
		out = policy.ClassifyCheckOut(in.Now, sched)
	default:
		return ClassifyResult{}, fmt.Errorf("unknown attempt kind %q (want checkin or checkout)", kind)
	}

	var d model.VerificationDecision
	out.Apply(&d)
	return ClassifyResult{
		Accepted:         out.Accepted,
		Reason:           out.Reason,
		RequiresOverride: d.RequiresOverride,
		EarliestAllowed:  d.EarliestAllowed,
		IsLate:           d.IsLate,
		LateMinutes:      d.LateMinutes,
		ShiftStart:       out.ShiftStart,
		ShiftEnd:         out.ShiftEnd,
	}, nil
}
