// Package queue moves appointment status events from the outbox table to
// RabbitMQ and from RabbitMQ to the patient's inbox.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// StatusQueueName is the durable queue carrying status events.
const StatusQueueName = "appointment.status"

// StatusChangedEvent is the message body published for every committed
// appointment status change (and for payment confirmation, which announces
// ACCEPTED). EventID doubles as the AMQP message id so consumers can spot
// redeliveries.
type StatusChangedEvent struct {
	EventID       string `json:"event_id"`
	AppointmentID uint64 `json:"appointment_id"`
	PatientID     uint64 `json:"patient_id"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

// NewStatusChangedEvent converts an outbox row into its wire form.
func NewStatusChangedEvent(ev model.NotificationEvent) StatusChangedEvent {
	return StatusChangedEvent{
		EventID:       ev.ID.String(),
		AppointmentID: ev.AppointmentID,
		PatientID:     ev.PatientID,
		Status:        string(ev.Status),
		OccurredAt:    ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Notification converts the wire form back into the domain event.
func (e StatusChangedEvent) Notification() (model.NotificationEvent, error) {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return model.NotificationEvent{}, err
	}
	at, err := time.Parse(time.RFC3339, e.OccurredAt)
	if err != nil {
		return model.NotificationEvent{}, err
	}
	return model.NotificationEvent{
		ID:            id,
		AppointmentID: e.AppointmentID,
		PatientID:     e.PatientID,
		Status:        model.AppointmentStatus(e.Status),
		CreatedAt:     at,
	}, nil
}
