package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// AppointmentHandler exposes booking and the appointment lifecycle. All
// methods assume JWTAuth has already run.
type AppointmentHandler struct {
	Booking   Booker
	Lifecycle Lifecycle
	Payments  Payments
}

func NewAppointmentHandler(booking Booker, lifecycle Lifecycle, payments Payments) *AppointmentHandler {
	if booking == nil || lifecycle == nil || payments == nil {
		panic("nil service passed to NewAppointmentHandler")
	}
	return &AppointmentHandler{Booking: booking, Lifecycle: lifecycle, Payments: payments}
}

type bookRequest struct {
	PatientID uint64 `json:"patient_id"`
	DoctorID  uint64 `json:"doctor_id" validate:"required"`
	Date      string `json:"date" validate:"required,date"`
	TimeSlot  string `json:"time_slot" validate:"required,clock"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// Book handles POST /v1/appointments. Patients book for themselves; staff
// book on behalf of the patient named in patient_id. It returns 201 with
// the new appointment id, 409 when the slot is taken and 400 for invalid
// input or past dates.
func (h *AppointmentHandler) Book(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var body bookRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}

	patientID := body.PatientID
	switch {
	case actor.Role == model.RolePatient:
		if patientID != 0 && patientID != actor.ID {
			return fail(c, service.ErrNotOwner)
		}
		patientID = actor.ID
	case actor.Role.Staff():
		if patientID == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "patient_id is required"})
		}
	default:
		return fail(c, service.ErrForbidden)
	}

	a, err := h.Booking.Book(c.Request().Context(), service.BookingRequest{
		PatientID: patientID,
		DoctorID:  body.DoctorID,
		Date:      body.Date,
		TimeSlot:  body.TimeSlot,
		Notes:     body.Notes,
		CreatedBy: actor.ID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"appointment_id": a.ID,
		"status":         a.Status,
		"payment_status": a.PaymentStatus,
	})
}

// Get handles GET /v1/appointments/:id.
func (h *AppointmentHandler) Get(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	a, err := h.Lifecycle.Get(c.Request().Context(), actor, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Cancel handles POST /v1/appointments/:id/cancel.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	a, err := h.Lifecycle.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,appointment_status"`
}

// UpdateStatus handles PATCH /v1/appointments/:id/status.
func (h *AppointmentHandler) UpdateStatus(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	var body statusRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	a, err := h.Lifecycle.Transition(c.Request().Context(), actor, id, model.AppointmentStatus(body.Status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListPayments handles GET /v1/appointments/:id/payments.
func (h *AppointmentHandler) ListPayments(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	payments, err := h.Payments.History(c.Request().Context(), actor, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"appointment_id": id, "payments": payments})
}
