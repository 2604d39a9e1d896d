package service

import (
	"context"

	"github.com/iliyamo/clinic-appointments/internal/schedule"
)

// AvailabilityService answers which slots of a day are still free for a
// doctor. It always reads the store; nothing is cached between calls.
type AvailabilityService struct {
	appts  AppointmentStore
	clinic Clinic
}

func NewAvailabilityService(appts AppointmentStore, clinic Clinic) *AvailabilityService {
	return &AvailabilityService{appts: appts, clinic: clinic}
}

// Catalog returns the full ordered slot list of a working day.
func (s *AvailabilityService) Catalog() []string {
	return s.clinic.Catalog.Slots()
}

// AvailableSlots returns the catalog minus the slots held by active
// appointments of doctorID on date, in catalog order. Past dates are
// answered like any other date.
func (s *AvailabilityService) AvailableSlots(ctx context.Context, doctorID uint64, date string) ([]string, error) {
	if doctorID == 0 {
		return nil, validationf("doctor id is required")
	}
	if _, err := schedule.ParseDate(date, s.clinic.Location); err != nil {
		return nil, validationf("date must be YYYY-MM-DD")
	}
	booked, err := s.appts.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	reserved := make(map[string]bool, len(booked))
	for _, slot := range booked {
		reserved[slot] = true
	}
	return schedule.FilterReserved(s.clinic.Catalog.Slots(), reserved), nil
}
