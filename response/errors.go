package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/instruct/pkg/reflectx"
	"github.com/go-playground/validator/v10"
)

// ErrEmptyContent is returned when an attempt produced neither text nor tool calls.
var ErrEmptyContent = errors.New("empty content")

// FieldError is one field scoped validation failure. Field is empty when the failure
// concerns the document as a whole.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (f FieldError) Error() string {
	if f.Field == "" {
		return f.Message
	}
	if reflectx.IsZero(f.Value) {
		return fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s (got %v)", f.Field, f.Message, f.Value)
}

// ValidationResult is either valid or a list of field scoped errors.
type ValidationResult struct {
	Errors []FieldError
}

// Valid reports whether there are no errors.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err converts the result into a *ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

// Add appends field errors derived from err.
func (r *ValidationResult) Add(err error) {
	r.Errors = append(r.Errors, FieldErrors(err)...)
}

// ValidationError reports why a response could not be turned into a valid value.
type ValidationError struct {
	Errors []FieldError
	Err    error
}

// NewValidationError builds a ValidationError with a single field error.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Value: value, Message: message}}}
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	for i, fe := range e.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(fe.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FieldErrors flattens err into field errors. It understands *ValidationError,
// validator.ValidationErrors and joined errors; anything else becomes a document level error.
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var result []FieldError
		for _, e := range joined.Unwrap() {
			result = append(result, FieldErrors(e)...)
		}
		return result
	}

	var verr *ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 0 {
		return append([]FieldError(nil), verr.Errors...)
	}

	var tagErrs validator.ValidationErrors
	if errors.As(err, &tagErrs) {
		result := make([]FieldError, 0, len(tagErrs))
		for _, fe := range tagErrs {
			result = append(result, fromTagError(fe))
		}
		return result
	}

	return []FieldError{{Message: err.Error()}}
}

func fromTagError(fe validator.FieldError) FieldError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
	}
	return FieldError{Field: field, Value: fe.Value(), Message: msg}
}
