package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationEvent is a row of the `notification_outbox` table. It is
// written in the same transaction as the status change it announces and
// later relayed to the message broker, so a failed delivery can never undo
// the change itself.
//
// Fields:
//
//	ID            – event identifier, also used as the broker message id.
//	AppointmentID – appointment whose status changed.
//	PatientID     – recipient of the notification.
//	Status        – status being announced to the patient.
//	CreatedAt     – when the change was committed.
//	PublishedAt   – when the relay handed it to the broker (nullable).
//	Attempts      – failed publish attempts so far.
type NotificationEvent struct {
	ID            uuid.UUID         // notification_outbox.id
	AppointmentID uint64            // notification_outbox.appointment_id
	PatientID     uint64            // notification_outbox.patient_id
	Status        AppointmentStatus // notification_outbox.status
	CreatedAt     time.Time         // notification_outbox.created_at
	PublishedAt   *time.Time        // notification_outbox.published_at (nullable)
	Attempts      int               // notification_outbox.attempts
}

// NewNotificationEvent builds an unpublished event announcing status for
// appointment a.
func NewNotificationEvent(a *Appointment, status AppointmentStatus, at time.Time) NotificationEvent {
	return NotificationEvent{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		Status:        status,
		CreatedAt:     at,
	}
}
