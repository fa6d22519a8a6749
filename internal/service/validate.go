package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/student-data-vault/internal/apperror"
)

var validate = newValidator()

// newValidator reports fields by their JSON names and adds the maxbytes tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxBytes limits a string's length in bytes; max counts runes.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// messages maps "field.tag" or "field" to the client-facing message.
type messages map[string]string

// check validates in and turns the first failure into a validation error
// carrying the matching message.
func check(in any, msgs messages) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return fmt.Errorf("service: validating input: %w", err)
	}

	fe := firstFailure(fields)
	// coursesTeaching[0] shares the message of coursesTeaching.
	field, _, _ := strings.Cut(fe.Field(), "[")
	msg, ok := msgs[field+"."+fe.Tag()]
	if !ok {
		msg, ok = msgs[field]
	}
	if !ok {
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return apperror.ValidationFailed(field, msg)
}

// firstFailure prefers a missing required field over any other failure.
func firstFailure(fields validator.ValidationErrors) validator.FieldError {
	for _, fe := range fields {
		if fe.Tag() == "required" {
			return fe
		}
	}
	return fields[0]
}
