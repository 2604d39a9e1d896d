// Package validation wraps go-playground/validator with the clinic's
// custom tags and plugs into echo as its Validator.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Report json names so error details match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := time.Parse("2006-01-02", value)
		return err == nil
	})

	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := time.Parse("15:04", value)
		return err == nil && len(value) == 5
	})

	v.RegisterValidation("appointment_status", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		return ok && model.AppointmentStatus(value).Valid()
	})

	return &Validator{v: v}
}

// Validate satisfies echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	return v.v.Struct(i)
}

// Details maps each failing field to the tag it failed, or returns nil
// when err is not a validation failure.
func Details(err error) map[string]string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
