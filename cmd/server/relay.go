package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-appointments/internal/queue"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay outbox events to RabbitMQ and deliver notification emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWorker(ctx, a)
		},
	}
}

// runWorker drains the outbox on a schedule and consumes the status queue
// until ctx is cancelled.
func runWorker(ctx context.Context, a *app) error {
	b := a.cfg.Broker
	publisher := queue.NewPublisher(b.URL, a.log)
	defer publisher.Close()

	relay := queue.NewRelay(a.outbox, publisher, b.BatchSize, a.log)
	if _, err := relay.Start(ctx, b.RelayEvery); err != nil {
		return err
	}
	if n, err := a.outbox.Pending(ctx); err == nil {
		a.log.Info().Int("pending", n).Dur("every", b.RelayEvery).Msg("outbox relay started")
	}
	return queue.StartNotificationConsumer(ctx, b.URL, a.dispatcher(), a.log)
}
