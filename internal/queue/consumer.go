package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/notify"
)

// errMalformed marks message bodies that cannot be decoded.
var errMalformed = errors.New("malformed message")

// redeliverDelay paces requeued messages so a store outage does not spin
// the consumer.
const redeliverDelay = 2 * time.Second

// Deliverer sends the notification for one event.
type Deliverer interface {
	Deliver(ctx context.Context, ev model.NotificationEvent) error
}

// StartNotificationConsumer connects to RabbitMQ, declares the status
// queue (durable) and hands every message to d. It runs a reconnect loop
// with exponential backoff and returns only when ctx is cancelled.
// Malformed and undeliverable messages are rejected without requeue;
// other failures are requeued after a short pause.
func StartNotificationConsumer(ctx context.Context, url string, d Deliverer, log zerolog.Logger) error {
	log = log.With().Str("component", "notification-consumer").Logger()
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, d, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, d Deliverer, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(StatusQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(StatusQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, m.Body, d); err != nil {
				if !retryable(err) {
					log.Error().Err(err).Str("message_id", m.MessageId).Msg("dropping message")
					_ = m.Nack(false, false)
					continue
				}
				log.Warn().Err(err).Str("message_id", m.MessageId).Msg("delivery failed; requeueing")
				if !sleep(ctx, redeliverDelay) {
					_ = m.Nack(false, true)
					return ctx.Err()
				}
				_ = m.Nack(false, true)
				continue
			}
			_ = m.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, d Deliverer) error {
	var wire StatusChangedEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errMalformed, err)
	}
	ev, err := wire.Notification()
	if err != nil {
		return fmt.Errorf("%w: decode event: %v", errMalformed, err)
	}
	return d.Deliver(ctx, ev)
}

// retryable reports whether a failed message should go back on the queue.
func retryable(err error) bool {
	return !errors.Is(err, errMalformed) && !errors.Is(err, notify.ErrUndeliverable)
}
