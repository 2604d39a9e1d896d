package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/notify"
)

type memOutbox struct {
	events    []model.NotificationEvent
	published map[uuid.UUID]bool
	attempts  map[uuid.UUID]int
}

func newMemOutbox(n int) *memOutbox {
	o := &memOutbox{published: map[uuid.UUID]bool{}, attempts: map[uuid.UUID]int{}}
	base := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		a := &model.Appointment{ID: uint64(i + 1), PatientID: 7}
		o.events = append(o.events, model.NewNotificationEvent(a, model.StatusReview, base.Add(time.Duration(i)*time.Second)))
	}
	return o
}

func (o *memOutbox) Dispatch(_ context.Context, limit int, _ time.Time, send func(model.NotificationEvent) error) (int, error) {
	published := 0
	claimed := 0
	for _, ev := range o.events {
		if claimed == limit {
			break
		}
		if o.published[ev.ID] {
			continue
		}
		claimed++
		if err := send(ev); err != nil {
			o.attempts[ev.ID]++
			continue
		}
		o.published[ev.ID] = true
		published++
	}
	return published, nil
}

type stubPublisher struct {
	sent []model.NotificationEvent
	fail map[uint64]bool
}

func (p *stubPublisher) Publish(_ context.Context, ev model.NotificationEvent) error {
	if p.fail[ev.AppointmentID] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, ev)
	return nil
}

func TestDrainPublishesAllBatches(t *testing.T) {
	outbox := newMemOutbox(7)
	pub := &stubPublisher{}
	r := NewRelay(outbox, pub, 3, zerolog.Nop())

	n, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain error: %v", err)
	}
	if n != 7 || len(pub.sent) != 7 {
		t.Fatalf("expected 7 published, got %d (sent %d)", n, len(pub.sent))
	}
	for i, ev := range pub.sent {
		if ev.AppointmentID != uint64(i+1) {
			t.Fatalf("expected oldest first, got %d at %d", ev.AppointmentID, i)
		}
	}

	n, err = r.Drain(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left, got %d, %v", n, err)
	}
}

func TestDrainKeepsFailedEvents(t *testing.T) {
	outbox := newMemOutbox(4)
	pub := &stubPublisher{fail: map[uint64]bool{2: true}}
	r := NewRelay(outbox, pub, 10, zerolog.Nop())

	n, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 published, got %d", n)
	}
	failed := outbox.events[1]
	if outbox.published[failed.ID] || outbox.attempts[failed.ID] != 1 {
		t.Fatalf("expected failed event to stay in the outbox with one attempt")
	}

	pub.fail = nil
	n, err = r.Drain(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected the failed event on retry, got %d, %v", n, err)
	}
}

func TestStatusChangedEventRoundTrip(t *testing.T) {
	a := &model.Appointment{ID: 12, PatientID: 7}
	ev := model.NewNotificationEvent(a, model.StatusCancelled, time.Date(2025, 3, 10, 4, 30, 0, 0, time.UTC))

	body, err := json.Marshal(NewStatusChangedEvent(ev))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	rec := &recordingDeliverer{}
	if err := handleMessage(context.Background(), body, rec); err != nil {
		t.Fatalf("handleMessage error: %v", err)
	}
	got := rec.events[0]
	if got.ID != ev.ID || got.AppointmentID != 12 || got.PatientID != 7 || got.Status != model.StatusCancelled || !got.CreatedAt.Equal(ev.CreatedAt) {
		t.Fatalf("unexpected event: %+v", got)
	}
}

type recordingDeliverer struct {
	events []model.NotificationEvent
	err    error
}

func (d *recordingDeliverer) Deliver(_ context.Context, ev model.NotificationEvent) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, ev)
	return nil
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	rec := &recordingDeliverer{}
	for _, body := range []string{`not json`, `{"event_id":"nope","occurred_at":"2025-03-10T04:30:00Z"}`, `{"event_id":"` + uuid.NewString() + `","occurred_at":"yesterday"}`} {
		if err := handleMessage(context.Background(), []byte(body), rec); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected nothing delivered")
	}
}

func TestHandleMessagePropagatesDeliveryError(t *testing.T) {
	a := &model.Appointment{ID: 1, PatientID: 7}
	body, _ := json.Marshal(NewStatusChangedEvent(model.NewNotificationEvent(a, model.StatusReview, time.Now())))
	boom := errors.New("smtp down")
	if err := handleMessage(context.Background(), body, &recordingDeliverer{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestRetryableFailures(t *testing.T) {
	rec := &recordingDeliverer{}
	if err := handleMessage(context.Background(), []byte(`not json`), rec); retryable(err) {
		t.Fatalf("malformed body must be dropped: %v", err)
	}

	a := &model.Appointment{ID: 1, PatientID: 7}
	body, _ := json.Marshal(NewStatusChangedEvent(model.NewNotificationEvent(a, model.StatusAccepted, time.Now())))
	gone := fmt.Errorf("%w: patient 7 has no email", notify.ErrUndeliverable)
	if err := handleMessage(context.Background(), body, &recordingDeliverer{err: gone}); retryable(err) {
		t.Fatalf("undeliverable event must be dropped: %v", err)
	}
	if err := handleMessage(context.Background(), body, &recordingDeliverer{err: errors.New("driver: bad connection")}); !retryable(err) {
		t.Fatalf("store failure must be requeued: %v", err)
	}
}
