package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/schedule"
)

// BookingRequest is the input of BookingService.Book. CreatedBy is the
// caller, which differs from PatientID when staff book on a patient's
// behalf.
type BookingRequest struct {
	PatientID uint64
	DoctorID  uint64
	Date      string
	TimeSlot  string
	Notes     string
	CreatedBy uint64
}

// BookingService turns booking requests into appointments.
type BookingService struct {
	appts  AppointmentStore
	clinic Clinic
	log    zerolog.Logger
}

func NewBookingService(appts AppointmentStore, clinic Clinic, log zerolog.Logger) *BookingService {
	return &BookingService{appts: appts, clinic: clinic, log: log.With().Str("component", "booking").Logger()}
}

// Book validates req and reserves its slot. Checks run in this order:
// required fields and their shape (ErrValidation), date not before today
// in clinic time (ErrPastDate), slot free (ErrSlotUnavailable). The slot
// check and the insert are one atomic step in the store, so of several
// concurrent requests for the same doctor, date and slot exactly one
// succeeds. The new appointment is in REVIEW with payment PENDING.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*model.Appointment, error) {
	req.Date = strings.TrimSpace(req.Date)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)
	switch {
	case req.PatientID == 0:
		return nil, validationf("patient id is required")
	case req.DoctorID == 0:
		return nil, validationf("doctor id is required")
	case req.Date == "":
		return nil, validationf("appointment date is required")
	case req.TimeSlot == "":
		return nil, validationf("time slot is required")
	}
	if _, err := schedule.ParseDate(req.Date, s.clinic.Location); err != nil {
		return nil, validationf("appointment date must be YYYY-MM-DD")
	}
	if !s.clinic.Catalog.Contains(req.TimeSlot) {
		return nil, validationf("time slot %q is not offered", req.TimeSlot)
	}

	now := s.clinic.now()
	past, err := schedule.IsDatePast(req.Date, s.clinic.Location, now)
	if err != nil {
		return nil, validationf("appointment date must be YYYY-MM-DD")
	}
	if past {
		return nil, ErrPastDate
	}

	createdBy := req.CreatedBy
	if createdBy == 0 {
		createdBy = req.PatientID
	}
	a := &model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.Date,
		TimeSlot:        req.TimeSlot,
		Status:          model.StatusReview,
		PaymentStatus:   model.PaymentPending,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		a.Notes = &notes
	}

	if err := s.appts.Book(ctx, a); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			s.log.Info().Uint64("doctor_id", a.DoctorID).Str("date", a.AppointmentDate).Str("slot", a.TimeSlot).Msg("slot already taken")
		}
		return nil, translate(err, "appointment")
	}
	s.log.Info().
		Uint64("appointment_id", a.ID).
		Uint64("patient_id", a.PatientID).
		Uint64("doctor_id", a.DoctorID).
		Str("date", a.AppointmentDate).
		Str("slot", a.TimeSlot).
		Msg("appointment booked")
	return a, nil
}
