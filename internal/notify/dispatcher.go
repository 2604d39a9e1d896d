package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// ErrUndeliverable marks events that can never be delivered: the
// appointment or a contact no longer exists, or the patient has no email
// address. Store and mailer failures are returned unwrapped.
var ErrUndeliverable = errors.New("notification undeliverable")

// AppointmentReader loads the appointment an event refers to.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Appointment, error)
}

// ContactReader loads patient and doctor details.
type ContactReader interface {
	GetContact(ctx context.Context, id uint64) (*model.Contact, error)
}

// Dispatcher renders a status event for the patient and mails it.
type Dispatcher struct {
	appts    AppointmentReader
	contacts ContactReader
	mailer   Mailer
	appName  string
	log      zerolog.Logger
}

func NewDispatcher(appts AppointmentReader, contacts ContactReader, mailer Mailer, appName string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		appts:    appts,
		contacts: contacts,
		mailer:   mailer,
		appName:  appName,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

var subjects = map[model.AppointmentStatus]string{
	model.StatusReview:     "Appointment Under Review",
	model.StatusAccepted:   "Appointment Confirmed",
	model.StatusCancelled:  "Appointment Cancelled",
	model.StatusConsulting: "Consultation in Progress",
	model.StatusCompleted:  "Appointment Completed",
}

// Subject returns the email subject announcing status.
func Subject(status model.AppointmentStatus, appName string) string {
	s, ok := subjects[status]
	if !ok {
		s = "Appointment Update"
	}
	if appName == "" {
		return s
	}
	return s + " - " + appName
}

var leads = map[model.AppointmentStatus]string{
	model.StatusReview:     "We have received your appointment request and it is being reviewed.",
	model.StatusAccepted:   "Your appointment has been confirmed.",
	model.StatusCancelled:  "Your appointment has been cancelled.",
	model.StatusConsulting: "Your consultation is now in progress.",
	model.StatusCompleted:  "Your appointment has been completed. Thank you for visiting us.",
}

// Body renders the plain-text email body.
func Body(status model.AppointmentStatus, a *model.Appointment, patient, doctor *model.Contact, appName string) string {
	lead, ok := leads[status]
	if !ok {
		lead = fmt.Sprintf("The status of your appointment is now %s.", status)
	}
	date := a.AppointmentDate
	if d, err := time.Parse("2006-01-02", a.AppointmentDate); err == nil {
		date = d.Format("January 2, 2006")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n%s\n\n", patient.FullName(), lead)
	fmt.Fprintf(&b, "Appointment #%d\n", a.ID)
	fmt.Fprintf(&b, "Doctor: %s\n", doctor.FullName())
	fmt.Fprintf(&b, "Date:   %s\n", date)
	fmt.Fprintf(&b, "Time:   %s\n", a.TimeSlot)
	if appName != "" {
		fmt.Fprintf(&b, "\n%s\n", appName)
	}
	return b.String()
}

// lookup wraps a missing row in ErrUndeliverable and passes every other
// error through.
func lookup(err error, what string, id uint64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %d not found", ErrUndeliverable, what, id)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}

// Deliver mails the patient about ev. A missing appointment or contact, or
// an address-less patient, yields an error wrapping ErrUndeliverable.
func (d *Dispatcher) Deliver(ctx context.Context, ev model.NotificationEvent) error {
	a, err := d.appts.GetByID(ctx, ev.AppointmentID)
	if err != nil {
		return lookup(err, "appointment", ev.AppointmentID)
	}
	patient, err := d.contacts.GetContact(ctx, ev.PatientID)
	if err != nil {
		return lookup(err, "patient", ev.PatientID)
	}
	if patient.Email == "" {
		return fmt.Errorf("%w: patient %d has no email", ErrUndeliverable, ev.PatientID)
	}
	doctor, err := d.contacts.GetContact(ctx, a.DoctorID)
	if err != nil {
		return lookup(err, "doctor", a.DoctorID)
	}

	msg := Message{
		To:      patient.Email,
		ToName:  patient.FullName(),
		Subject: Subject(ev.Status, d.appName),
		Body:    Body(ev.Status, a, patient, doctor, d.appName),
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.log.Error().Err(err).Str("event_id", ev.ID.String()).Uint64("appointment_id", a.ID).Msg("email failed")
		return err
	}
	d.log.Info().
		Str("event_id", ev.ID.String()).
		Uint64("appointment_id", a.ID).
		Str("status", string(ev.Status)).
		Str("recipient", patient.Email).
		Msg("email sent")
	return nil
}
