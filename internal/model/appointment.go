package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusReview     AppointmentStatus = "REVIEW"
	StatusAccepted   AppointmentStatus = "ACCEPTED"
	StatusConsulting AppointmentStatus = "CONSULTING"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
)

// transitions lists, for every status, the statuses it may move to.
// COMPLETED and CANCELLED are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusReview:     {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusConsulting, StatusCancelled},
	StatusConsulting: {StatusCompleted},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// Valid reports whether s is one of the known statuses.
func (s AppointmentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s AppointmentStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether the lifecycle allows moving from one
// status to another. Moving to the same status is never allowed.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment represents a patient's reservation of one catalog slot
// with a doctor. It corresponds to a row in the `appointments` table.
// Rows are never deleted; cancellation is a status and frees the slot.
//
// Fields:
//
//	ID              – primary key identifier.
//	PatientID       – user ID of the patient the visit is for.
//	DoctorID        – user ID of the doctor.
//	AppointmentDate – calendar date in YYYY-MM-DD form (clinic time zone).
//	TimeSlot        – slot start in HH:MM form, one of the catalog values.
//	Notes           – optional free text supplied when booking.
//	Status          – lifecycle status.
//	PaymentStatus   – whether the visit has been paid for.
//	CreatedBy       – user ID of whoever issued the booking.
//	CreatedAt       – creation timestamp (UTC).
//	UpdatedAt       – last status or payment change (UTC).
type Appointment struct {
	ID              uint64            `json:"id"`               // appointments.id
	PatientID       uint64            `json:"patient_id"`       // appointments.patient_id
	DoctorID        uint64            `json:"doctor_id"`        // appointments.doctor_id
	AppointmentDate string            `json:"appointment_date"` // appointments.appointment_date
	TimeSlot        string            `json:"time_slot"`        // appointments.time_slot
	Notes           *string           `json:"notes,omitempty"`  // appointments.notes (nullable)
	Status          AppointmentStatus `json:"status"`           // appointments.status
	PaymentStatus   PaymentStatus     `json:"payment_status"`   // appointments.payment_status
	CreatedBy       uint64            `json:"created_by"`       // appointments.created_by
	CreatedAt       time.Time         `json:"created_at"`       // appointments.created_at
	UpdatedAt       time.Time         `json:"updated_at"`       // appointments.updated_at
}

// Paid reports whether the appointment's payment has been collected.
func (a *Appointment) Paid() bool { return a.PaymentStatus == PaymentCompleted }
