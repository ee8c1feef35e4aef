package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkin.engine/internal/core/model"
	"checkin.engine/internal/ports/memory"
	"checkin.engine/internal/ports/repository"
)

func TestCommandApplier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttendanceStore()
	applier := repository.NewCommandApplier(store)

	in := model.AttendanceCommand{
		Kind:   model.CommandCreateClockIn,
		UserID: "u1",
		Date:   "2026-03-10",
		Record: &model.AttendanceRecord{
			UserID:  "u1",
			Date:    "2026-03-10",
			ClockIn: &model.ClockIn{At: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		},
	}
	id, err := applier.Emit(ctx, in)
	if err != nil || id == "" {
		t.Fatalf("create: %q, %v", id, err)
	}

	if _, err := applier.Emit(ctx, in); !errors.Is(err, repository.ErrDuplicateRecord) {
		t.Errorf("second create err = %v, want ErrDuplicateRecord", err)
	}

	out := model.AttendanceCommand{
		Kind:     model.CommandUpdateClockOut,
		RecordID: id,
		ClockOut: &model.ClockOutFields{ClockOut: model.ClockOut{At: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}, WorkMinutes: 540},
	}
	if got, err := applier.Emit(ctx, out); err != nil || got != id {
		t.Fatalf("update: %q, %v", got, err)
	}

	if state, _ := store.GetState(ctx, "u1", "2026-03-10"); state != model.StateClockedOut {
		t.Errorf("state = %s", state)
	}
}

func TestCommandApplierRejectsMalformed(t *testing.T) {
	applier := repository.NewCommandApplier(memory.NewAttendanceStore())
	cases := []model.AttendanceCommand{
		{Kind: model.CommandCreateClockIn},
		{Kind: model.CommandUpdateClockOut, RecordID: "x"},
		{Kind: "DELETE"},
	}
	for _, c := range cases {
		if _, err := applier.Emit(context.Background(), c); err == nil {
			t.Errorf("%s: expected error", c.Kind)
		}
	}
}
