package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// Outcome tells what a gateway callback did.
type Outcome string

const (
	// OutcomeCompleted: the payment moved PENDING -> COMPLETED now.
	OutcomeCompleted Outcome = "completed"
	// OutcomeDuplicate: a success for an already completed payment.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeFailed: a failure report; the payment stays PENDING.
	OutcomeFailed Outcome = "failed"
	// OutcomeIgnored: a failure report for a completed payment.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeOrphaned: the payment completed but its appointment was
	// already cancelled or paid; the funds need a refund.
	OutcomeOrphaned Outcome = "orphaned"
	// OutcomeRejected: the callback was not applied.
	OutcomeRejected Outcome = "rejected"
)

// Gateway configures the outbound checkout payload.
type Gateway struct {
	Credentials payhere.Credentials
	CheckoutURL string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
	Address     string
	City        string
	Country     string
}

// PaymentService creates payments and reconciles gateway callbacks.
type PaymentService struct {
	appts    AppointmentStore
	payments PaymentStore
	contacts ContactStore
	gateway  Gateway
	clinic   Clinic
	log      zerolog.Logger
}

func NewPaymentService(appts AppointmentStore, payments PaymentStore, contacts ContactStore, gateway Gateway, clinic Clinic, log zerolog.Logger) *PaymentService {
	return &PaymentService{
		appts:    appts,
		payments: payments,
		contacts: contacts,
		gateway:  gateway,
		clinic:   clinic,
		log:      log.With().Str("component", "payment").Logger(),
	}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationf("amount must be greater than zero")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return validationf("amount must have at most two decimals")
	}
	return nil
}

// payable rejects appointments that can no longer take a payment.
func payable(a *model.Appointment) error {
	if a.Status == model.StatusCancelled {
		return ErrAppointmentClosed
	}
	if a.Paid() {
		return ErrAlreadyPaid
	}
	return nil
}

// InitiateCard creates a PENDING card payment and returns the signed
// checkout payload for the gateway. Nothing else changes until the
// gateway calls back.
func (s *PaymentService) InitiateCard(ctx context.Context, actor model.Actor, appointmentID uint64, amount decimal.Decimal) (*payhere.Checkout, error) {
	if appointmentID == 0 {
		return nil, validationf("appointment id is required")
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if actor.Role != model.RolePatient && !actor.Role.Staff() {
		return nil, ErrForbidden
	}

	now := s.clinic.now()
	p := &model.Payment{
		AppointmentID: appointmentID,
		Amount:        amount.Round(2),
		Method:        model.MethodCard,
		Status:        model.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a, err := s.payments.CreatePending(ctx, p, func(a *model.Appointment) error {
		if actor.Role == model.RolePatient && a.PatientID != actor.ID {
			return ErrNotOwner
		}
		return payable(a)
	})
	if err != nil {
		return nil, translate(err, "appointment")
	}

	contact, err := s.contacts.GetContact(ctx, a.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Uint64("patient_id", a.PatientID).Msg("patient contact unavailable; checkout sent without payer details")
		contact = &model.Contact{ID: a.PatientID}
	}

	orderID := payhere.OrderID(a.ID, p.ID)
	creds := s.gateway.Credentials
	checkout := &payhere.Checkout{
		CheckoutURL: s.gateway.CheckoutURL,
		MerchantID:  creds.MerchantID,
		ReturnURL:   s.gateway.ReturnURL,
		CancelURL:   s.gateway.CancelURL,
		NotifyURL:   s.gateway.NotifyURL,
		OrderID:     orderID,
		Items:       fmt.Sprintf("Appointment #%d", a.ID),
		Currency:    creds.Currency,
		Amount:      payhere.FormatAmount(p.Amount),
		Hash:        creds.Sign(orderID, p.Amount),
		FirstName:   contact.FirstName,
		LastName:    contact.LastName,
		Email:       contact.Email,
		Phone:       contact.Mobile,
		Address:     s.gateway.Address,
		City:        s.gateway.City,
		Country:     s.gateway.Country,
	}
	s.log.Info().
		Uint64("appointment_id", a.ID).
		Uint64("payment_id", p.ID).
		Str("order_id", orderID).
		Str("amount", checkout.Amount).
		Msg("card payment initiated")
	return checkout, nil
}

// RecordCash records money collected at the desk. Only staff may do this.
// The payment is written COMPLETED and the appointment marked paid in one
// transaction.
func (s *PaymentService) RecordCash(ctx context.Context, actor model.Actor, appointmentID uint64, amount decimal.Decimal) (*model.Payment, error) {
	if !actor.Role.Staff() {
		return nil, ErrForbidden
	}
	if appointmentID == 0 {
		return nil, validationf("appointment id is required")
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	now := s.clinic.now()
	paidBy := actor.ID
	p := &model.Payment{
		AppointmentID: appointmentID,
		Amount:        amount.Round(2),
		Method:        model.MethodCash,
		Status:        model.PaymentCompleted,
		PaidBy:        &paidBy,
		PaidAt:        &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.RecordCash(ctx, p, payable); err != nil {
		return nil, translate(err, "appointment")
	}
	s.log.Info().
		Uint64("appointment_id", appointmentID).
		Uint64("payment_id", p.ID).
		Uint64("paid_by", paidBy).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("cash payment recorded")
	return p, nil
}

// HandleCallback reconciles a gateway notification. In order: the
// signature must match (ErrIntegrity), the order id must parse
// (ErrIntegrity), the payment must exist under that appointment
// (ErrNotFound) and carry the notified amount (ErrIntegrity). Rejections
// change nothing. A success completes the payment and marks the
// appointment paid exactly once; redeliveries report OutcomeDuplicate.
// A success arriving after the appointment was cancelled or paid in cash
// completes the payment alone and reports OutcomeOrphaned. A
// failure keeps the payment PENDING unless it is already completed, in
// which case it is ignored.
func (s *PaymentService) HandleCallback(ctx context.Context, n payhere.Notification) (Outcome, error) {
	log := s.log.With().Str("order_id", n.OrderID).Int("status_code", n.StatusCode).Logger()
	creds := s.gateway.Credentials

	if n.MerchantID != "" && n.MerchantID != creds.MerchantID {
		log.Warn().Str("merchant_id", n.MerchantID).Msg("callback for another merchant rejected")
		return OutcomeRejected, fmt.Errorf("%w: merchant id mismatch", ErrIntegrity)
	}
	if err := creds.Authenticate(n); err != nil {
		log.Warn().Msg("callback signature verification failed")
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	appointmentID, paymentID, err := payhere.ParseOrderID(n.OrderID)
	if err != nil {
		log.Warn().Msg("callback with malformed order id rejected")
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	log = log.With().Uint64("appointment_id", appointmentID).Uint64("payment_id", paymentID).Logger()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn().Msg("callback for unknown payment rejected")
		}
		return OutcomeRejected, translate(err, "payment")
	}
	if p.AppointmentID != appointmentID {
		log.Warn().Uint64("recorded_appointment_id", p.AppointmentID).Msg("callback order id does not match payment")
		return OutcomeRejected, fmt.Errorf("payment %d of appointment %d: %w", paymentID, appointmentID, ErrNotFound)
	}
	if !p.Amount.Equal(n.Amount) {
		log.Warn().Str("recorded", p.Amount.StringFixed(2)).Str("notified", n.Amount.StringFixed(2)).Msg("callback amount mismatch")
		return OutcomeRejected, fmt.Errorf("%w: amount does not match payment", ErrIntegrity)
	}

	now := s.clinic.now()
	if n.Succeeded() {
		if p.Status == model.PaymentCompleted {
			log.Info().Msg("duplicate success callback ignored")
			return OutcomeDuplicate, nil
		}
		res, err := s.payments.CompleteCard(ctx, repository.CardCompletion{
			PaymentID:      paymentID,
			AppointmentID:  appointmentID,
			TransactionRef: n.OrderID,
			StatusCode:     n.StatusCode,
			At:             now,
		})
		if err != nil {
			return OutcomeRejected, translate(err, "payment")
		}
		switch res {
		case repository.CardDuplicate:
			log.Info().Msg("duplicate success callback ignored")
			return OutcomeDuplicate, nil
		case repository.CardOrphaned:
			log.Warn().Str("amount", p.Amount.StringFixed(2)).Msg("card captured for cancelled or already paid appointment; refund required")
			return OutcomeOrphaned, nil
		}
		log.Info().Msg("card payment completed")
		return OutcomeCompleted, nil
	}

	if p.Status == model.PaymentCompleted {
		log.Warn().Msg("failure callback for completed payment ignored")
		return OutcomeIgnored, nil
	}
	updated, err := s.payments.ResetPending(ctx, paymentID, n.StatusCode, now)
	if err != nil {
		return OutcomeRejected, translate(err, "payment")
	}
	if !updated {
		log.Warn().Msg("failure callback for completed payment ignored")
		return OutcomeIgnored, nil
	}
	log.Info().Msg("card payment not captured; payment left pending")
	return OutcomeFailed, nil
}

// History lists the payments of an appointment the actor may see.
func (s *PaymentService) History(ctx context.Context, actor model.Actor, appointmentID uint64) ([]model.Payment, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, translate(err, "appointment")
	}
	if err := canView(actor, a); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
