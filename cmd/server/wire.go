package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/notify"
	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/schedule"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" || env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app holds the wiring shared by every subcommand that touches the store.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	outbox   *repository.OutboxRepo
	appts    *repository.AppointmentRepo
	payments *repository.PaymentRepo
	users    *repository.UserRepo
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log := newLogger(cfg.Env)

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to database")

	outbox := repository.NewOutboxRepo(db)
	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		outbox:   outbox,
		appts:    repository.NewAppointmentRepo(db, outbox),
		payments: repository.NewPaymentRepo(db, outbox),
		users:    repository.NewUserRepo(db),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// clinic builds the scheduling rules from configuration. A bad working day
// definition stops startup.
func (a *app) clinic() (service.Clinic, error) {
	c := a.cfg.Clinic
	loc, err := c.Location()
	if err != nil {
		return service.Clinic{}, err
	}
	catalog, err := schedule.NewCatalog(c.WorkingHoursStart, c.WorkingHoursEnd, c.LunchBreakStart, c.LunchBreakEnd, c.SlotLength)
	if err != nil {
		return service.Clinic{}, err
	}
	return service.Clinic{
		Catalog:            catalog,
		Location:           loc,
		CancellationWindow: c.CancellationWindow,
	}, nil
}

func (a *app) gateway() service.Gateway {
	p := a.cfg.PayHere
	if p.MerchantID == "" || p.Secret == "" {
		a.log.Warn().Msg("PAYHERE_MERCHANT_ID or PAYHERE_MERCHANT_SECRET not set; card callbacks will fail verification")
	}
	checkout := payhere.LiveCheckoutURL
	if p.Sandbox {
		checkout = payhere.SandboxCheckoutURL
	}
	return service.Gateway{
		Credentials: payhere.Credentials{MerchantID: p.MerchantID, Secret: p.Secret, Currency: p.Currency},
		CheckoutURL: checkout,
		ReturnURL:   p.ReturnURL,
		CancelURL:   p.CancelURL,
		NotifyURL:   p.NotifyURL,
		Address:     p.Address,
		City:        p.City,
		Country:     p.Country,
	}
}

func (a *app) dispatcher() *notify.Dispatcher {
	s := a.cfg.SMTP
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		FromName: s.FromName,
	})
	return notify.NewDispatcher(a.appts, a.users, mailer, a.cfg.AppName, a.log)
}
