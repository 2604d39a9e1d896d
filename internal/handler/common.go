package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/service"
	"github.com/iliyamo/clinic-appointments/internal/validation"
)

// Booker creates appointments.
type Booker interface {
	Book(ctx context.Context, req service.BookingRequest) (*model.Appointment, error)
}

// Lifecycle reads and moves appointments through their statuses.
type Lifecycle interface {
	Get(ctx context.Context, actor model.Actor, id uint64) (*model.Appointment, error)
	Cancel(ctx context.Context, actor model.Actor, id uint64) (*model.Appointment, error)
	Transition(ctx context.Context, actor model.Actor, id uint64, to model.AppointmentStatus) (*model.Appointment, error)
}

// Availability answers slot queries.
type Availability interface {
	Catalog() []string
	AvailableSlots(ctx context.Context, doctorID uint64, date string) ([]string, error)
}

// Payments creates payments and reconciles gateway callbacks.
type Payments interface {
	InitiateCard(ctx context.Context, actor model.Actor, appointmentID uint64, amount decimal.Decimal) (*payhere.Checkout, error)
	RecordCash(ctx context.Context, actor model.Actor, appointmentID uint64, amount decimal.Decimal) (*model.Payment, error)
	HandleCallback(ctx context.Context, n payhere.Notification) (service.Outcome, error)
	History(ctx context.Context, actor model.Actor, appointmentID uint64) ([]model.Payment, error)
}

var (
	_ Booker       = (*service.BookingService)(nil)
	_ Lifecycle    = (*service.LifecycleService)(nil)
	_ Availability = (*service.AvailabilityService)(nil)
	_ Payments     = (*service.PaymentService)(nil)
)

var errUnauthorized = errors.New("unauthorized")

// caller returns the authenticated actor placed in the context by JWTAuth.
func caller(c echo.Context) (model.Actor, error) {
	a, ok := middleware.Actor(c)
	if !ok {
		return model.Actor{}, errUnauthorized
	}
	return a, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// bind decodes and validates the request body. It writes the 400 response
// itself and reports whether the handler may continue.
func bind(c echo.Context, body interface{}) (bool, error) {
	if err := c.Bind(body); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(body); err != nil {
		if details := validation.Details(err); details != nil {
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrPastDate),
		errors.Is(err, service.ErrIntegrity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrPolicyViolation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes the error response for err. Unknown errors are returned to
// echo as well so the request logger records them; the client only sees
// a generic message.
func fail(c echo.Context, err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		_ = c.JSON(code, echo.Map{"error": "internal error"})
		return err
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}
