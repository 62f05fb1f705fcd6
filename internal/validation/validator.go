// Package validation binds and validates request payloads with
// go-playground/validator.
package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
)

// Validator adapts validator/v10 to echo.Validator.
type Validator struct {
	v *validatorv10.Validate
}

// New returns a validator that reports fields by their json names.
func New() *Validator {
	v := validatorv10.New(validatorv10.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
	if err := cv.v.Struct(i); err != nil {
		return apperr.ValidationFields("validation failed", fieldErrors(err))
	}
	return nil
}

// BindAndValidate binds the request into out and validates it. Errors are
// always apperr validation errors.
func BindAndValidate(c echo.Context, out any) error {
	if err := c.Bind(out); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(out); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.ValidationFields("validation failed", fieldErrors(err))
	}
	return nil
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
