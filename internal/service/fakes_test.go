package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/schedule"
)

// memDB is an in-memory stand-in for the appointments, payments and
// notification_outbox tables. A single mutex plays the part of the row
// locks and the unique key.
type memDB struct {
	mu       sync.Mutex
	appts    map[uint64]*model.Appointment
	payments map[uint64]*model.Payment
	events   []model.NotificationEvent
	nextAppt uint64
	nextPay  uint64
}

func newMemDB() *memDB {
	return &memDB{appts: map[uint64]*model.Appointment{}, payments: map[uint64]*model.Payment{}}
}

func (db *memDB) eventsFor(appointmentID uint64) []model.NotificationEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.NotificationEvent
	for _, ev := range db.events {
		if ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out
}

func (db *memDB) setPaymentStatus(appointmentID uint64, st model.PaymentStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.appts[appointmentID].PaymentStatus = st
}

type memAppointments struct{ db *memDB }

func (m memAppointments) GetByID(_ context.Context, id uint64) (*model.Appointment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.appts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAppointments) BookedSlots(_ context.Context, doctorID uint64, date string) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []string
	for _, a := range m.db.appts {
		if a.DoctorID == doctorID && a.AppointmentDate == date && a.Status != model.StatusCancelled {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

func (m memAppointments) Book(_ context.Context, a *model.Appointment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, other := range m.db.appts {
		if other.DoctorID == a.DoctorID && other.AppointmentDate == a.AppointmentDate &&
			other.TimeSlot == a.TimeSlot && other.Status != model.StatusCancelled {
			return repository.ErrSlotTaken
		}
	}
	m.db.nextAppt++
	a.ID = m.db.nextAppt
	cp := *a
	m.db.appts[a.ID] = &cp
	m.db.events = append(m.db.events, model.NewNotificationEvent(a, a.Status, a.CreatedAt))
	return nil
}

func (m memAppointments) TransitionStatus(_ context.Context, id uint64, to model.AppointmentStatus, at time.Time, guard func(*model.Appointment) error) (*model.Appointment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.appts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	view := *a
	if guard != nil {
		if err := guard(&view); err != nil {
			return nil, err
		}
	}
	a.Status = to
	a.UpdatedAt = at
	m.db.events = append(m.db.events, model.NewNotificationEvent(a, to, at))
	cp := *a
	return &cp, nil
}

type memPayments struct{ db *memDB }

func (m memPayments) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m memPayments) ListByAppointment(_ context.Context, appointmentID uint64) ([]model.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []model.Payment{}
	for id := uint64(1); id <= m.db.nextPay; id++ {
		if p, ok := m.db.payments[id]; ok && p.AppointmentID == appointmentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m memPayments) insert(p *model.Payment, guard func(*model.Appointment) error) (*model.Appointment, error) {
	a, ok := m.db.appts[p.AppointmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	view := *a
	if guard != nil {
		if err := guard(&view); err != nil {
			return nil, err
		}
	}
	m.db.nextPay++
	p.ID = m.db.nextPay
	p.PatientID = a.PatientID
	p.DoctorID = a.DoctorID
	cp := *p
	m.db.payments[p.ID] = &cp
	return a, nil
}

func (m memPayments) CreatePending(_ context.Context, p *model.Payment, guard func(*model.Appointment) error) (*model.Appointment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, err := m.insert(p, guard)
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (m memPayments) RecordCash(_ context.Context, p *model.Payment, guard func(*model.Appointment) error) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, err := m.insert(p, guard)
	if err != nil {
		return err
	}
	a.PaymentStatus = model.PaymentCompleted
	return nil
}

func (m memPayments) CompleteCard(_ context.Context, c repository.CardCompletion) (repository.CardResult, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.appts[c.AppointmentID]
	if !ok {
		return repository.CardDuplicate, repository.ErrNotFound
	}
	p, ok := m.db.payments[c.PaymentID]
	if !ok || p.AppointmentID != c.AppointmentID || p.Status != model.PaymentPending {
		return repository.CardDuplicate, nil
	}
	ref := c.TransactionRef
	code := c.StatusCode
	at := c.At
	p.Status = model.PaymentCompleted
	p.TransactionRef = &ref
	p.GatewayStatusCode = &code
	p.PaidAt = &at
	if a.Status == model.StatusCancelled || a.Paid() {
		return repository.CardOrphaned, nil
	}
	a.PaymentStatus = model.PaymentCompleted
	m.db.events = append(m.db.events, model.NewNotificationEvent(a, model.StatusAccepted, c.At))
	return repository.CardApplied, nil
}

func (m memPayments) ResetPending(_ context.Context, paymentID uint64, statusCode int, _ time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.payments[paymentID]
	if !ok || p.Status != model.PaymentPending {
		return false, nil
	}
	code := statusCode
	p.GatewayStatusCode = &code
	p.PaidAt = nil
	return true, nil
}

type memContacts map[uint64]*model.Contact

func (m memContacts) GetContact(_ context.Context, id uint64) (*model.Contact, error) {
	c, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

var (
	colombo = time.FixedZone("+0530", 5*3600+30*60)
	creds   = payhere.Credentials{MerchantID: "1221149", Secret: "MTIzNDU2Nzg5", Currency: "LKR"}

	patient7 = model.Actor{ID: 7, Role: model.RolePatient}
	patient8 = model.Actor{ID: 8, Role: model.RolePatient}
	doctor3  = model.Actor{ID: 3, Role: model.RoleDoctor}
	doctor4  = model.Actor{ID: 4, Role: model.RoleDoctor}
	staff    = model.Actor{ID: 100, Role: model.RoleStaff}
)

// env wires every service to one memDB with a settable clock.
type env struct {
	db           *memDB
	now          time.Time
	availability *AvailabilityService
	booking      *BookingService
	lifecycle    *LifecycleService
	payments     *PaymentService
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	catalog, err := schedule.NewCatalog("08:00", "22:00", "12:00", "13:00", time.Hour)
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	e := &env{db: newMemDB(), now: now}
	clinic := Clinic{
		Catalog:            catalog,
		Location:           colombo,
		CancellationWindow: 3 * time.Hour,
		Now:                func() time.Time { return e.now },
	}
	appts := memAppointments{db: e.db}
	contacts := memContacts{
		7: {ID: 7, FirstName: "Nimal", LastName: "Perera", Email: "nimal@example.com", Mobile: "0771234567", Role: model.RolePatient},
	}
	gateway := Gateway{
		Credentials: creds,
		CheckoutURL: payhere.SandboxCheckoutURL,
		ReturnURL:   "http://localhost/payment/return",
		CancelURL:   "http://localhost/payment/cancel",
		NotifyURL:   "http://localhost/v1/payments/payhere/notify",
		Address:     "Colombo, Sri Lanka",
		City:        "Colombo",
		Country:     "Sri Lanka",
	}
	log := zerolog.Nop()
	e.availability = NewAvailabilityService(appts, clinic)
	e.booking = NewBookingService(appts, clinic, log)
	e.lifecycle = NewLifecycleService(appts, clinic, log)
	e.payments = NewPaymentService(appts, memPayments{db: e.db}, contacts, gateway, clinic, log)
	return e
}

func (e *env) book(t *testing.T, patientID, doctorID uint64, date, slot string) *model.Appointment {
	t.Helper()
	a, err := e.booking.Book(context.Background(), BookingRequest{PatientID: patientID, DoctorID: doctorID, Date: date, TimeSlot: slot})
	if err != nil {
		t.Fatalf("Book(%d, %d, %s, %s) error: %v", patientID, doctorID, date, slot, err)
	}
	return a
}
