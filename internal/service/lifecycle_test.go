package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// 07:00 on the day of the appointments.
var march10Morning = time.Date(2025, 3, 10, 7, 0, 0, 0, colombo)

func TestPatientCancellationWindow(t *testing.T) {
	e := newEnv(t, march10Morning)
	twoHours := e.book(t, 7, 3, "2025-03-10", "09:00")
	threeHours := e.book(t, 7, 3, "2025-03-10", "10:00")
	fourHours := e.book(t, 7, 3, "2025-03-10", "11:00")

	_, err := e.lifecycle.Cancel(context.Background(), patient7, twoHours.ID)
	if !errors.Is(err, ErrCancellationWindow) || !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected cancellation window violation at 2h, got %v", err)
	}
	if _, err := e.lifecycle.Cancel(context.Background(), patient7, threeHours.ID); !errors.Is(err, ErrCancellationWindow) {
		t.Fatalf("expected cancellation window violation at exactly 3h, got %v", err)
	}

	a, err := e.lifecycle.Cancel(context.Background(), patient7, fourHours.ID)
	if err != nil {
		t.Fatalf("expected cancel at 4h to succeed, got %v", err)
	}
	if a.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", a.Status)
	}

	got, err := e.lifecycle.Get(context.Background(), patient7, twoHours.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != model.StatusReview {
		t.Fatalf("rejected cancel must not change status, got %s", got.Status)
	}
}

func TestStaffCancelIgnoresWindow(t *testing.T) {
	e := newEnv(t, march10Morning)
	a := e.book(t, 7, 3, "2025-03-10", "08:00")
	if _, err := e.lifecycle.Cancel(context.Background(), staff, a.ID); err != nil {
		t.Fatalf("staff cancel error: %v", err)
	}
}

func TestPaidAppointmentCannotBeCancelled(t *testing.T) {
	e := newEnv(t, march9)
	a := e.book(t, 7, 3, "2025-03-10", "18:00")
	e.db.setPaymentStatus(a.ID, model.PaymentCompleted)

	for _, actor := range []model.Actor{patient7, staff} {
		_, err := e.lifecycle.Cancel(context.Background(), actor, a.ID)
		if !errors.Is(err, ErrAlreadyPaid) || !errors.Is(err, ErrPolicyViolation) {
			t.Fatalf("%s: expected paid appointment violation, got %v", actor.Role, err)
		}
	}
}

func TestTransitionGuards(t *testing.T) {
	e := newEnv(t, march9)
	ctx := context.Background()
	a := e.book(t, 7, 3, "2025-03-10", "10:00")

	if _, err := e.lifecycle.Cancel(ctx, patient8, a.ID); !errors.Is(err, ErrNotOwner) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ownership violation, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, patient7, a.ID, model.StatusAccepted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected patients to be limited to cancellation, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, doctor4, a.ID, model.StatusAccepted); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected other doctor to be rejected, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, doctor3, a.ID, model.StatusCancelled); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected doctors not to cancel, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, staff, a.ID, model.StatusConsulting); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected REVIEW -> CONSULTING to be invalid, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, staff, a.ID, model.AppointmentStatus("DONE")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown status to be a validation error, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, model.Actor{ID: 1, Role: "Guest"}, a.ID, model.StatusAccepted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, staff, 999, model.StatusAccepted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := e.lifecycle.Transition(ctx, doctor3, a.ID, model.StatusAccepted); err != nil {
		t.Fatalf("REVIEW -> ACCEPTED error: %v", err)
	}
	_, err := e.lifecycle.Transition(ctx, staff, a.ID, model.StatusAccepted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected same-status transition to be rejected, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, staff, a.ID, model.StatusConsulting); err != nil {
		t.Fatalf("ACCEPTED -> CONSULTING error: %v", err)
	}
	if _, err := e.lifecycle.Cancel(ctx, staff, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected CONSULTING -> CANCELLED to be invalid, got %v", err)
	}
	if _, err := e.lifecycle.Transition(ctx, staff, a.ID, model.StatusCompleted); err != nil {
		t.Fatalf("CONSULTING -> COMPLETED error: %v", err)
	}
	_, err = e.lifecycle.Cancel(ctx, staff, a.ID)
	if !errors.Is(err, ErrInvalidTransition) || !strings.Contains(err.Error(), "COMPLETED and can no longer change") {
		t.Fatalf("expected completed appointment to be final, got %v", err)
	}

	events := e.db.eventsFor(a.ID)
	want := []model.AppointmentStatus{model.StatusReview, model.StatusAccepted, model.StatusConsulting, model.StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i, st := range want {
		if events[i].Status != st {
			t.Fatalf("event %d: expected %s, got %s", i, st, events[i].Status)
		}
	}
}

func TestGetVisibility(t *testing.T) {
	e := newEnv(t, march9)
	ctx := context.Background()
	a := e.book(t, 7, 3, "2025-03-10", "10:00")

	for _, actor := range []model.Actor{patient7, doctor3, staff, {ID: 1, Role: model.RoleAdmin}} {
		if _, err := e.lifecycle.Get(ctx, actor, a.ID); err != nil {
			t.Fatalf("%+v: Get error: %v", actor, err)
		}
	}
	for _, actor := range []model.Actor{patient8, doctor4} {
		if _, err := e.lifecycle.Get(ctx, actor, a.ID); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("%+v: expected ErrNotOwner, got %v", actor, err)
		}
	}
}
