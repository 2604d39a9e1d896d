package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/router"
	"github.com/iliyamo/clinic-appointments/internal/service"
	"github.com/iliyamo/clinic-appointments/internal/validation"
)

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the outbox relay and notification consumer in this process")
	return cmd
}

func runServer(ctx context.Context, withWorker bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	clinic, err := a.clinic()
	if err != nil {
		log.Error().Err(err).Msg("invalid clinic configuration")
		return err
	}

	availability := service.NewAvailabilityService(a.appts, clinic)
	booking := service.NewBookingService(a.appts, clinic, log)
	lifecycle := service.NewLifecycleService(a.appts, clinic, log)
	payments := service.NewPaymentService(a.appts, a.payments, a.users, a.gateway(), clinic, log)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn().Msg("redis unavailable; rate limiting and catalog cache disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))

	router.RegisterRoutes(e, router.Deps{
		JWTSecret:    a.cfg.JWTSecret,
		Redis:        rdb,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		DB:           a.db,
		Appointments: handler.NewAppointmentHandler(booking, lifecycle, payments),
		Payments:     handler.NewPaymentHandler(payments, log),
		Slots:        handler.NewSlotHandler(availability),
		Log:          log,
	})

	if withWorker {
		go func() {
			if err := runWorker(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("worker stopped")
			}
		}()
	}

	addr := ":" + a.cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
