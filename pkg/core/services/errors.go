package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrForbidden is returned when the acting user lacks the permission for an operation
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned for every failed login, whatever the cause
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports input that failed validation before any write
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var validate = validator.New()

// validateEntity runs struct tag validation and reports the failing fields
func validateEntity(kind string, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return &ValidationError{Message: fmt.Sprintf("invalid %s: %s", kind, strings.Join(fields, ", ")), Err: err}
	}
	return &ValidationError{Message: "invalid " + kind, Err: err}
}
