package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Outbox is the claiming side of the notification outbox.
type Outbox interface {
	Dispatch(ctx context.Context, limit int, now time.Time, send func(model.NotificationEvent) error) (int, error)
}

// EventPublisher hands one event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.NotificationEvent) error
}

// Relay periodically moves committed outbox events to the broker. Events
// stay in the outbox until the broker accepts them, so a broker outage
// delays notifications but never loses them.
type Relay struct {
	outbox    Outbox
	publisher EventPublisher
	batch     int
	log       zerolog.Logger
	now       func() time.Time
}

func NewRelay(outbox Outbox, publisher EventPublisher, batch int, log zerolog.Logger) *Relay {
	if batch < 1 {
		batch = 1
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batch:     batch,
		log:       log.With().Str("component", "relay").Logger(),
		now:       time.Now,
	}
}

// Drain publishes batches until the outbox has no more publishable events
// or a batch makes no progress. It returns the number published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		attempted := 0
		n, err := r.outbox.Dispatch(ctx, r.batch, r.now(), func(ev model.NotificationEvent) error {
			attempted++
			return r.publisher.Publish(ctx, ev)
		})
		total += n
		if err != nil {
			return total, err
		}
		if attempted < r.batch || n < attempted {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// Start schedules Drain every interval until ctx is cancelled. Runs never
// overlap; a slow drain makes the next tick skip.
func (r *Relay) Start(ctx context.Context, every time.Duration) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		n, err := r.Drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Int("published", n).Msg("outbox drain failed")
			return
		}
		if n > 0 {
			r.log.Info().Int("published", n).Msg("outbox drained")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule outbox relay: %w", err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
