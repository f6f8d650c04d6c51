// Package validation wraps go-playground/validator so every plugin reports
// input errors the same way: a 422 apperror naming the offending JSON field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/keyxmakerx/parley/internal/apperror"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// get returns the shared validator. Field names in errors come from json
// tags so messages match what the client sent.
func get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	if err := get().Struct(s); err != nil {
		return toAppError(err, "")
	}
	return nil
}

// Var validates a single value. field names the value in the error message.
func Var(value any, tag, field string) error {
	if err := get().Var(value, tag); err != nil {
		return toAppError(err, field)
	}
	return nil
}

// toAppError reports the first failing rule. The offending value is never
// echoed back since it may be a password.
func toAppError(err error, field string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.NewValidation("invalid input")
	}

	fe := verrs[0]
	name := field
	if name == "" {
		name = fe.Field()
	}
	return apperror.NewValidation(describe(name, fe))
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
