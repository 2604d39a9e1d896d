package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SlotHandler serves the slot catalog and per-doctor availability.
type SlotHandler struct {
	Slots Availability
}

func NewSlotHandler(slots Availability) *SlotHandler {
	if slots == nil {
		panic("nil availability passed to NewSlotHandler")
	}
	return &SlotHandler{Slots: slots}
}

// Catalog handles GET /v1/slots/catalog.
func (h *SlotHandler) Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"slots": h.Slots.Catalog()})
}

// Available handles GET /v1/doctors/:id/slots?date=YYYY-MM-DD and returns
// the free slots of that day in catalog order.
func (h *SlotHandler) Available(c echo.Context) error {
	doctorID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid doctor id"})
	}
	date := c.QueryParam("date")
	slots, err := h.Slots.AvailableSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"doctor_id": doctorID, "date": date, "slots": slots})
}
