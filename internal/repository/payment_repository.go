package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// PaymentRepo persists payments and applies their effect on the owning
// appointment. Writes that touch both tables share one transaction.
type PaymentRepo struct {
	db     *sql.DB
	outbox *OutboxRepo
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB, outbox *OutboxRepo) *PaymentRepo {
	return &PaymentRepo{db: db, outbox: outbox}
}

// CardCompletion carries a verified successful gateway notification.
type CardCompletion struct {
	PaymentID      uint64
	AppointmentID  uint64
	TransactionRef string
	StatusCode     int
	At             time.Time
}

const paymentColumns = `id, appointment_id, patient_id, doctor_id, amount, method, status,
                        transaction_reference, gateway_status_code, paid_by, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var method, status string
	var ref sql.NullString
	var code sql.NullInt64
	var paidBy sql.NullInt64
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.AppointmentID, &p.PatientID, &p.DoctorID, &p.Amount, &method, &status,
		&ref, &code, &paidBy, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	if ref.Valid {
		s := ref.String
		p.TransactionRef = &s
	}
	if code.Valid {
		c := int(code.Int64)
		p.GatewayStatusCode = &c
	}
	if paidBy.Valid {
		u := uint64(paidBy.Int64)
		p.PaidBy = &u
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

// GetByID returns a single payment or ErrNotFound.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return scanPayment(r.db.QueryRowContext(ctx, q, id))
}

// ListByAppointment returns every payment recorded for an appointment,
// oldest first. An empty slice is returned when there are none.
func (r *PaymentRepo) ListByAppointment(ctx context.Context, appointmentID uint64) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE appointment_id = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func insertPaymentTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments
               (appointment_id, patient_id, doctor_id, amount, method, status, paid_by, paid_at, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var paidAt any
	if p.PaidAt != nil {
		paidAt = p.PaidAt.UTC()
	}
	res, err := tx.ExecContext(ctx, q,
		p.AppointmentID, p.PatientID, p.DoctorID, p.Amount.StringFixed(2), string(p.Method), string(p.Status),
		p.PaidBy, paidAt, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// CreatePending inserts a PENDING card payment. The owning appointment is
// locked and handed to guard first; patient and doctor are copied from it.
func (r *PaymentRepo) CreatePending(ctx context.Context, p *model.Payment, guard func(*model.Appointment) error) (*model.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	a, err := lockAppointmentTx(ctx, tx, p.AppointmentID)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(a); err != nil {
			return nil, err
		}
	}
	p.PatientID = a.PatientID
	p.DoctorID = a.DoctorID
	if err := insertPaymentTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return a, nil
}

// RecordCash inserts a COMPLETED cash payment and marks the appointment
// paid, both under the appointment's row lock.
func (r *PaymentRepo) RecordCash(ctx context.Context, p *model.Payment, guard func(*model.Appointment) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	a, err := lockAppointmentTx(ctx, tx, p.AppointmentID)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(a); err != nil {
			return err
		}
	}
	p.PatientID = a.PatientID
	p.DoctorID = a.DoctorID
	if err := insertPaymentTx(ctx, tx, p); err != nil {
		return err
	}
	const upd = `UPDATE appointments SET payment_status = 'COMPLETED', updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, p.UpdatedAt.UTC(), a.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CardResult tells what CompleteCard did.
type CardResult int

const (
	// CardDuplicate: the payment was not PENDING; nothing was written.
	CardDuplicate CardResult = iota
	// CardApplied: the payment completed and the appointment is now paid.
	CardApplied
	// CardOrphaned: the payment completed but its appointment was already
	// cancelled or paid, so the appointment was left untouched and no
	// event was queued. The captured funds need a refund.
	CardOrphaned
)

// CompleteCard applies a successful gateway notification. The appointment
// is locked first, matching the lock order of the other payment writes,
// then the payment is flipped with a compare-and-swap on status PENDING.
// When that matches no row the payment was already completed and nothing
// is written, so redelivered callbacks have no further effect. The
// captured funds are always recorded on the payment; the appointment is
// marked paid and ACCEPTED is announced only while it is neither
// cancelled nor paid by another payment.
func (r *PaymentRepo) CompleteCard(ctx context.Context, c CardCompletion) (CardResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return CardDuplicate, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	a, err := lockAppointmentTx(ctx, tx, c.AppointmentID)
	if err != nil {
		return CardDuplicate, err
	}

	const cas = `UPDATE payments
                 SET status = 'COMPLETED', transaction_reference = ?, gateway_status_code = ?, paid_at = ?, updated_at = ?
                 WHERE id = ? AND appointment_id = ? AND status = 'PENDING'`
	res, err := tx.ExecContext(ctx, cas, c.TransactionRef, c.StatusCode, c.At.UTC(), c.At.UTC(), c.PaymentID, c.AppointmentID)
	if err != nil {
		return CardDuplicate, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CardDuplicate, err
	}
	if n == 0 {
		return CardDuplicate, nil
	}

	result := CardOrphaned
	if a.Status != model.StatusCancelled && !a.Paid() {
		const upd = `UPDATE appointments SET payment_status = 'COMPLETED', updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, upd, c.At.UTC(), a.ID); err != nil {
			return CardDuplicate, err
		}
		a.PaymentStatus = model.PaymentCompleted
		if err := r.outbox.EnqueueTx(ctx, tx, model.NewNotificationEvent(a, model.StatusAccepted, c.At)); err != nil {
			return CardDuplicate, err
		}
		result = CardApplied
	}
	if err := tx.Commit(); err != nil {
		return CardDuplicate, err
	}
	committed = true
	return result, nil
}

// ResetPending records a failed gateway notification. The payment stays
// (or is put back) PENDING with paid_at cleared, but only while it is not
// completed. It reports whether a row was updated.
func (r *PaymentRepo) ResetPending(ctx context.Context, paymentID uint64, statusCode int, at time.Time) (bool, error) {
	const q = `UPDATE payments
               SET status = 'PENDING', gateway_status_code = ?, paid_at = NULL, updated_at = ?
               WHERE id = ? AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, statusCode, at.UTC(), paymentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
