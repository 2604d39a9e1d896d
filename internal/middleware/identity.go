package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Actor returns the authenticated caller stored by JWTAuth.
func Actor(c echo.Context) (model.Actor, bool) {
	id, ok := c.Get("user_id").(uint64)
	if !ok || id == 0 {
		return model.Actor{}, false
	}
	role, _ := c.Get("role").(string)
	return model.Actor{ID: id, Role: model.Role(role)}, true
}

// userID renders the caller for rate limit keys; "anon" when no token was
// presented.
func userID(c echo.Context) string {
	if a, ok := Actor(c); ok {
		return strconv.FormatUint(a.ID, 10)
	}
	return "anon"
}
