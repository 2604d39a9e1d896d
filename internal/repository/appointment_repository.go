package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// AppointmentRepo provides the booking and lifecycle writes for the
// appointments table. Every write runs in its own transaction together
// with the outbox row announcing it, so a committed status change always
// has exactly one pending notification.
//
// The table carries a generated column
//
//	active_slot = IF(status <> 'CANCELLED', 1, NULL)
//
// and a unique key on (doctor_id, appointment_date, time_slot,
// active_slot). Cancelled rows hold NULL and never collide, so the key
// behaves as a partial unique index over active appointments.
type AppointmentRepo struct {
	db     *sql.DB
	outbox *OutboxRepo
}

// NewAppointmentRepo returns a new AppointmentRepo bound to the given
// database. Status events are written through outbox.
func NewAppointmentRepo(db *sql.DB, outbox *OutboxRepo) *AppointmentRepo {
	return &AppointmentRepo{db: db, outbox: outbox}
}

// DB exposes the underlying handle for health checks.
func (r *AppointmentRepo) DB() *sql.DB { return r.db }

// appointment_date is read back as a string so it never shifts across
// time zones.
const appointmentColumns = `id, patient_id, doctor_id, DATE_FORMAT(appointment_date, '%Y-%m-%d'), time_slot,
                            notes, status, payment_status, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	var notes sql.NullString
	var status, paymentStatus string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.TimeSlot,
		&notes, &status, &paymentStatus, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if notes.Valid {
		n := notes.String
		a.Notes = &n
	}
	a.Status = model.AppointmentStatus(status)
	a.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &a, nil
}

// lockAppointmentTx loads an appointment and holds its row lock until the
// transaction ends.
func lockAppointmentTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ? FOR UPDATE`
	return scanAppointment(tx.QueryRowContext(ctx, q, id))
}

// GetByID returns a single appointment or ErrNotFound.
func (r *AppointmentRepo) GetByID(ctx context.Context, id uint64) (*model.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	return scanAppointment(r.db.QueryRowContext(ctx, q, id))
}

// BookedSlots lists the slots held by active appointments of a doctor on a
// date. It reads committed rows only and takes no locks.
func (r *AppointmentRepo) BookedSlots(ctx context.Context, doctorID uint64, date string) ([]string, error) {
	const q = `SELECT time_slot FROM appointments
               WHERE doctor_id = ? AND appointment_date = ? AND status <> 'CANCELLED'
               ORDER BY time_slot`
	rows, err := r.db.QueryContext(ctx, q, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// Book inserts a new appointment if its slot is free. The candidate slot
// is locked before the insert so concurrent bookings for the same key
// queue behind each other; the loser observes the winner's row, hits the
// unique key, or is chosen as a deadlock victim, and all three surface as
// ErrSlotTaken. On success the generated ID is set on a and the initial
// status event is queued.
func (r *AppointmentRepo) Book(ctx context.Context, a *model.Appointment) error {
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

	const lock = `SELECT id FROM appointments
                  WHERE doctor_id = ? AND appointment_date = ? AND time_slot = ? AND status <> 'CANCELLED'
                  FOR UPDATE`
	var holder uint64
	err = tx.QueryRowContext(ctx, lock, a.DoctorID, a.AppointmentDate, a.TimeSlot).Scan(&holder)
	switch {
	case err == nil:
		return ErrSlotTaken
	case errors.Is(err, sql.ErrNoRows):
	default:
		return slotContention(err)
	}

	const ins = `INSERT INTO appointments
                 (patient_id, doctor_id, appointment_date, time_slot, notes, status, payment_status, created_by, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins,
		a.PatientID, a.DoctorID, a.AppointmentDate, a.TimeSlot, a.Notes,
		string(a.Status), string(a.PaymentStatus), a.CreatedBy, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return slotContention(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)

	if err := r.outbox.EnqueueTx(ctx, tx, model.NewNotificationEvent(a, a.Status, a.CreatedAt)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return slotContention(err)
	}
	committed = true
	return nil
}

// TransitionStatus moves an appointment to status to. The row is locked,
// passed to guard (which may veto the change by returning an error), and
// then updated conditionally on the status guard saw. The status event is
// queued in the same transaction. It returns the updated appointment.
func (r *AppointmentRepo) TransitionStatus(ctx context.Context, id uint64, to model.AppointmentStatus, at time.Time, guard func(*model.Appointment) error) (*model.Appointment, error) {
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

	a, err := lockAppointmentTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(a); err != nil {
			return nil, err
		}
	}

	const upd = `UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, upd, string(to), at.UTC(), id, string(a.Status))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	a.Status = to
	a.UpdatedAt = at

	if err := r.outbox.EnqueueTx(ctx, tx, model.NewNotificationEvent(a, to, at)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return a, nil
}
