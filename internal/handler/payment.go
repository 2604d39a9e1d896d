package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/clinic-appointments/internal/payhere"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// PaymentHandler exposes card checkout, cash collection and the gateway
// notification endpoint.
type PaymentHandler struct {
	Payments Payments
	log      zerolog.Logger
}

func NewPaymentHandler(payments Payments, log zerolog.Logger) *PaymentHandler {
	if payments == nil {
		panic("nil payments passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments, log: log.With().Str("component", "payment-handler").Logger()}
}

type paymentRequest struct {
	AppointmentID uint64          `json:"appointment_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

// InitiateCard handles POST /v1/payments/card. The response carries every
// field the client posts to the gateway checkout form.
func (h *PaymentHandler) InitiateCard(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var body paymentRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	checkout, err := h.Payments.InitiateCard(c.Request().Context(), actor, body.AppointmentID, body.Amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, checkout)
}

// RecordCash handles POST /v1/payments/cash (staff only).
func (h *PaymentHandler) RecordCash(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var body paymentRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	p, err := h.Payments.RecordCash(c.Request().Context(), actor, body.AppointmentID, body.Amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Notify handles POST /v1/payments/payhere/notify, the form-encoded server
// to server callback. Any 2xx tells the gateway the notification was
// consumed, so duplicates and ignored failures answer 200 while rejected
// notifications answer 4xx.
func (h *PaymentHandler) Notify(c echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid form body"})
	}
	n, err := payhere.ParseNotification(c.Request().PostForm)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_ip", c.RealIP()).Msg("malformed gateway notification")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed notification"})
	}
	outcome, err := h.Payments.HandleCallback(c.Request().Context(), n)
	if err != nil {
		if errors.Is(err, service.ErrIntegrity) {
			h.log.Warn().Str("order_id", n.OrderID).Str("remote_ip", c.RealIP()).Msg("gateway notification failed integrity checks")
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"outcome": outcome})
}
