package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/service"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

type nopServices struct{}

func (nopServices) Book(context.Context, service.BookingRequest) (*model.Appointment, error) {
	return &model.Appointment{ID: 1}, nil
}
func (nopServices) Get(_ context.Context, _ model.Actor, id uint64) (*model.Appointment, error) {
	return &model.Appointment{ID: id}, nil
}
func (nopServices) Cancel(_ context.Context, _ model.Actor, id uint64) (*model.Appointment, error) {
	return &model.Appointment{ID: id}, nil
}
func (nopServices) Transition(_ context.Context, _ model.Actor, id uint64, to model.AppointmentStatus) (*model.Appointment, error) {
	return &model.Appointment{ID: id, Status: to}, nil
}
func (nopServices) InitiateCard(context.Context, model.Actor, uint64, decimal.Decimal) (*payhere.Checkout, error) {
	return &payhere.Checkout{}, nil
}
func (nopServices) RecordCash(context.Context, model.Actor, uint64, decimal.Decimal) (*model.Payment, error) {
	return &model.Payment{}, nil
}
func (nopServices) HandleCallback(context.Context, payhere.Notification) (service.Outcome, error) {
	return service.OutcomeCompleted, nil
}
func (nopServices) History(context.Context, model.Actor, uint64) ([]model.Payment, error) {
	return []model.Payment{}, nil
}
func (nopServices) Catalog() []string { return []string{"08:00"} }
func (nopServices) AvailableSlots(context.Context, uint64, string) ([]string, error) {
	return []string{"08:00"}, nil
}

const secret = "router-secret"

func newEcho() *echo.Echo {
	return newEchoWith(nil, config.RateLimitConfig{})
}

func newEchoWith(rdb *redis.Client, limit config.RateLimitConfig) *echo.Echo {
	e := echo.New()
	s := nopServices{}
	RegisterRoutes(e, Deps{
		JWTSecret:    secret,
		Redis:        rdb,
		RateLimit:    limit,
		Appointments: handler.NewAppointmentHandler(s, s, s),
		Payments:     handler.NewPaymentHandler(s, zerolog.Nop()),
		Slots:        handler.NewSlotHandler(s),
		Log:          zerolog.Nop(),
	})
	return e
}

func TestRouteProtection(t *testing.T) {
	e := newEcho()
	token := func(role model.Role) string {
		tok, err := utils.NewAccessToken(secret, 7, role, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok.Token
	}
	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/slots/catalog", "", http.StatusOK},
		{http.MethodGet, "/v1/appointments/1", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/appointments/1", token(model.RolePatient), http.StatusOK},
		{http.MethodGet, "/v1/doctors/3/slots?date=2025-03-10", token(model.RoleDoctor), http.StatusOK},
		{http.MethodPatch, "/v1/appointments/1/status", token(model.RolePatient), http.StatusForbidden},
		{http.MethodPost, "/v1/payments/cash", token(model.RoleDoctor), http.StatusForbidden},
		{http.MethodPost, "/v1/appointments", token(model.RoleDoctor), http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestGatewayCallbackBypassesRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	e := newEchoWith(rdb, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "test:rl",
	})
	form := url.Values{
		"merchant_id":      {"1221149"},
		"order_id":         {"APP_12_34"},
		"payment_id":       {"320025071278"},
		"payhere_amount":   {"2500.00"},
		"payhere_currency": {"LKR"},
		"status_code":      {"2"},
		"md5sig":           {"4AE35C13EC117F3ED1D72BF3E72BFF24"},
	}
	serve := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/payhere/notify", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		if code := serve(req); code != http.StatusOK {
			t.Fatalf("callback %d: expected 200, got %d", i+1, code)
		}
	}
	// The callbacks above left the bucket for this address untouched.
	if code := serve(httptest.NewRequest(http.MethodGet, "/v1/slots/catalog", nil)); code != http.StatusOK {
		t.Fatalf("expected first catalog request to pass, got %d", code)
	}
	if code := serve(httptest.NewRequest(http.MethodGet, "/v1/slots/catalog", nil)); code != http.StatusTooManyRequests {
		t.Fatalf("expected catalog to be limited, got %d", code)
	}
}
