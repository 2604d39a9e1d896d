package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is shared by payments and by the payment axis of an
// appointment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

// PaymentMethod tells how the money was collected.
type PaymentMethod string

const (
	MethodCard PaymentMethod = "CARD"
	MethodCash PaymentMethod = "CASH"
)

// Payment records money collected (or expected) for an appointment.
// Card payments start PENDING and are completed by a verified gateway
// callback; cash payments are written COMPLETED by staff.
//
// Fields:
//
//	ID                – primary key identifier.
//	AppointmentID     – appointment being paid for.
//	PatientID         – copied from the appointment.
//	DoctorID          – copied from the appointment.
//	Amount            – amount in the gateway currency, two decimals.
//	Method            – CARD or CASH.
//	Status            – PENDING or COMPLETED.
//	TransactionRef    – gateway order id once completed (nullable).
//	GatewayStatusCode – last status code reported by the gateway (nullable).
//	PaidBy            – staff user who collected cash (nullable).
//	PaidAt            – completion time (nullable).
//	CreatedAt         – creation timestamp.
//	UpdatedAt         – last update timestamp.
type Payment struct {
	ID                uint64          `json:"id"`                              // payments.id
	AppointmentID     uint64          `json:"appointment_id"`                  // payments.appointment_id
	PatientID         uint64          `json:"patient_id"`                      // payments.patient_id
	DoctorID          uint64          `json:"doctor_id"`                       // payments.doctor_id
	Amount            decimal.Decimal `json:"amount"`                          // payments.amount
	Method            PaymentMethod   `json:"method"`                          // payments.method
	Status            PaymentStatus   `json:"status"`                          // payments.status
	TransactionRef    *string         `json:"transaction_reference,omitempty"` // payments.transaction_reference (nullable)
	GatewayStatusCode *int            `json:"gateway_status_code,omitempty"`   // payments.gateway_status_code (nullable)
	PaidBy            *uint64         `json:"paid_by,omitempty"`               // payments.paid_by (nullable)
	PaidAt            *time.Time      `json:"paid_at,omitempty"`               // payments.paid_at (nullable)
	CreatedAt         time.Time       `json:"created_at"`                      // payments.created_at
	UpdatedAt         time.Time       `json:"updated_at"`                      // payments.updated_at
}
