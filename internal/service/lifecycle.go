package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/schedule"
)

// LifecycleService applies status transitions to appointments.
//
// Who may do what:
//
//	Admin, Staff  any allowed transition; cancel without the time window
//	Doctor        forward transitions of their own appointments
//	Patient       cancel their own appointment, outside the time window
//
// A paid appointment is never cancellable, and moving to the status an
// appointment already has is rejected as an invalid transition.
type LifecycleService struct {
	appts  AppointmentStore
	clinic Clinic
	log    zerolog.Logger
}

func NewLifecycleService(appts AppointmentStore, clinic Clinic, log zerolog.Logger) *LifecycleService {
	return &LifecycleService{appts: appts, clinic: clinic, log: log.With().Str("component", "lifecycle").Logger()}
}

// Get returns an appointment the actor is allowed to see.
func (s *LifecycleService) Get(ctx context.Context, actor model.Actor, id uint64) (*model.Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "appointment")
	}
	if err := canView(actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel moves an appointment to CANCELLED.
func (s *LifecycleService) Cancel(ctx context.Context, actor model.Actor, id uint64) (*model.Appointment, error) {
	return s.Transition(ctx, actor, id, model.StatusCancelled)
}

// Transition moves an appointment to status to on behalf of actor. The
// guards run against the locked row, so the decision and the write see the
// same state. On success the status event for the patient is queued in
// the same transaction.
func (s *LifecycleService) Transition(ctx context.Context, actor model.Actor, id uint64, to model.AppointmentStatus) (*model.Appointment, error) {
	if id == 0 {
		return nil, validationf("appointment id is required")
	}
	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleStaff:
	case model.RoleDoctor:
		if to == model.StatusCancelled {
			return nil, ErrForbidden
		}
	case model.RolePatient:
		if to != model.StatusCancelled {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	now := s.clinic.now()
	var from model.AppointmentStatus
	guard := func(a *model.Appointment) error {
		from = a.Status
		return s.check(actor, a, to, now)
	}
	a, err := s.appts.TransitionStatus(ctx, id, to, now, guard)
	if err != nil {
		return nil, translate(err, "appointment")
	}
	s.log.Info().
		Uint64("appointment_id", a.ID).
		Uint64("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Str("from", string(from)).
		Str("status", string(a.Status)).
		Msg("appointment status changed")
	return a, nil
}

// check evaluates the transition guards in order: ownership, lifecycle
// table, payment, cancellation window.
func (s *LifecycleService) check(actor model.Actor, a *model.Appointment, to model.AppointmentStatus, now time.Time) error {
	if actor.Role == model.RolePatient && a.PatientID != actor.ID {
		return ErrNotOwner
	}
	if actor.Role == model.RoleDoctor && a.DoctorID != actor.ID {
		return ErrNotOwner
	}
	if a.Status.Terminal() {
		return fmt.Errorf("%w: appointment is %s and can no longer change", ErrInvalidTransition, a.Status)
	}
	if !model.CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
	}
	if to != model.StatusCancelled {
		return nil
	}
	if a.Paid() {
		return ErrAlreadyPaid
	}
	if actor.Role != model.RolePatient {
		return nil
	}
	start, err := schedule.SlotTime(a.AppointmentDate, a.TimeSlot, s.clinic.Location)
	if err != nil {
		return fmt.Errorf("appointment %d has malformed schedule: %w", a.ID, err)
	}
	if start.Sub(now) <= s.clinic.CancellationWindow {
		return fmt.Errorf("%w: cancellation closes %s before the appointment", ErrCancellationWindow, s.clinic.CancellationWindow)
	}
	return nil
}
