package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// OutboxRepo persists notification events next to the state change that
// produced them and hands them to the relay in batches.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo returns a new OutboxRepo bound to the given database.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// EnqueueTx inserts ev within the caller's transaction. The caller must
// commit or rollback the transaction.
func (r *OutboxRepo) EnqueueTx(ctx context.Context, tx *sql.Tx, ev model.NotificationEvent) error {
	const q = `INSERT INTO notification_outbox (id, appointment_id, patient_id, status, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, ev.ID.String(), ev.AppointmentID, ev.PatientID, string(ev.Status), ev.CreatedAt.UTC())
	return err
}

// Dispatch claims up to limit unpublished events, oldest first, and calls
// send for each. Rows are locked with SKIP LOCKED so concurrent relays
// never claim the same event. A successful send marks the row published;
// a failed one records the error and bumps the attempt counter. It returns
// the number of events published.
func (r *OutboxRepo) Dispatch(ctx context.Context, limit int, now time.Time, send func(model.NotificationEvent) error) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT id, appointment_id, patient_id, status, created_at, attempts
                 FROM notification_outbox
                 WHERE published_at IS NULL
                 ORDER BY created_at, id
                 LIMIT ?
                 FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, sel, limit)
	if err != nil {
		return 0, err
	}
	var batch []model.NotificationEvent
	for rows.Next() {
		var ev model.NotificationEvent
		var id, status string
		if err := rows.Scan(&id, &ev.AppointmentID, &ev.PatientID, &status, &ev.CreatedAt, &ev.Attempts); err != nil {
			rows.Close()
			return 0, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox row %q: %w", id, err)
		}
		ev.ID = parsed
		ev.Status = model.AppointmentStatus(status)
		batch = append(batch, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	const markOK = `UPDATE notification_outbox SET published_at = ?, last_error = NULL WHERE id = ?`
	const markFail = `UPDATE notification_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	published := 0
	for _, ev := range batch {
		if sendErr := send(ev); sendErr != nil {
			msg := sendErr.Error()
			if len(msg) > 512 {
				msg = msg[:512]
			}
			if _, err := tx.ExecContext(ctx, markFail, msg, ev.ID.String()); err != nil {
				return published, err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, markOK, now.UTC(), ev.ID.String()); err != nil {
			return published, err
		}
		published++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return published, nil
}

// Pending counts events not yet published.
func (r *OutboxRepo) Pending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_outbox WHERE published_at IS NULL`).Scan(&n)
	return n, err
}
