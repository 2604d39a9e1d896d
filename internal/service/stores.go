package service

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/schedule"
)

// AppointmentStore is the persistence contract for appointments. Guards
// run while the row is locked; an error returned by a guard aborts the
// write and is returned as is.
type AppointmentStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Appointment, error)
	BookedSlots(ctx context.Context, doctorID uint64, date string) ([]string, error)
	Book(ctx context.Context, a *model.Appointment) error
	TransitionStatus(ctx context.Context, id uint64, to model.AppointmentStatus, at time.Time, guard func(*model.Appointment) error) (*model.Appointment, error)
}

// PaymentStore is the persistence contract for payments.
type PaymentStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	ListByAppointment(ctx context.Context, appointmentID uint64) ([]model.Payment, error)
	CreatePending(ctx context.Context, p *model.Payment, guard func(*model.Appointment) error) (*model.Appointment, error)
	RecordCash(ctx context.Context, p *model.Payment, guard func(*model.Appointment) error) error
	CompleteCard(ctx context.Context, c repository.CardCompletion) (repository.CardResult, error)
	ResetPending(ctx context.Context, paymentID uint64, statusCode int, at time.Time) (bool, error)
}

// ContactStore resolves user contact details.
type ContactStore interface {
	GetContact(ctx context.Context, id uint64) (*model.Contact, error)
}

var (
	_ AppointmentStore = (*repository.AppointmentRepo)(nil)
	_ PaymentStore     = (*repository.PaymentRepo)(nil)
	_ ContactStore     = (*repository.UserRepo)(nil)
)

// Clinic holds the scheduling rules shared by the services.
type Clinic struct {
	Catalog            *schedule.Catalog
	Location           *time.Location
	CancellationWindow time.Duration
	Now                func() time.Time
}

func (c Clinic) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// canView reports whether actor may read appointment a.
func canView(actor model.Actor, a *model.Appointment) error {
	switch {
	case actor.Role.Staff():
		return nil
	case actor.Role == model.RolePatient && a.PatientID == actor.ID:
		return nil
	case actor.Role == model.RoleDoctor && a.DoctorID == actor.ID:
		return nil
	}
	return ErrNotOwner
}
