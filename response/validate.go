package response

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// Validatable is implemented by targets that carry their own domain rules. It may be
// implemented on the value or on the pointer receiver.
type Validatable interface {
	Validate() error
}

var (
	// ErrSchemaEcho is returned by the partial tier when the candidate looks like a JSON schema.
	ErrSchemaEcho = errors.New("candidate echoes a JSON schema instead of data")
	// ErrUnexpectedKey is returned by the partial tier when the candidate carries an undeclared key.
	ErrUnexpectedKey = errors.New("candidate has an undeclared key")
)

var (
	defaultStructValidator     *validator.Validate
	defaultStructValidatorOnce sync.Once
)

// StructValidator returns the shared go-playground validator. Field names in its errors
// are taken from json tags.
func StructValidator() *validator.Validate {
	defaultStructValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return field.Name
			}
			return name
		})
		defaultStructValidator = v
	})
	return defaultStructValidator
}

// Validator is the full tier. It runs struct tag rules and the target's own Validate method.
// Targets with neither are always valid.
type Validator[T any] struct {
	model   *Model[T]
	structs *validator.Validate
}

// NewValidator creates a full tier validator. A nil structs falls back to StructValidator().
func NewValidator[T any](model *Model[T], structs *validator.Validate) *Validator[T] {
	if structs == nil {
		structs = StructValidator()
	}
	return &Validator[T]{model: model, structs: structs}
}

// Validate checks value and collects every failure as field scoped errors.
func (v *Validator[T]) Validate(ctx context.Context, value T) ValidationResult {
	var result ValidationResult

	if v.model.structTags {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			result.Errors = append(result.Errors, FieldError{Message: "value is nil"})
			return result
		}
		if err := v.structs.StructCtx(ctx, value); err != nil {
			var invalid *validator.InvalidValidationError
			if !errors.As(err, &invalid) {
				result.Add(err)
			}
		}
	}

	switch v.model.validatable {
	case valueValidatable:
		result.Add(any(value).(Validatable).Validate())
	case pointerValidatable:
		result.Add(any(&value).(Validatable).Validate())
	}
	return result
}

// PartialValidator is the cheap tier applied to streamed candidates. Its rejections are
// advisory: the caller drops the candidate and keeps streaming.
type PartialValidator struct {
	PreventSchemaEcho bool
	MatchPartialKeys  bool
	hasProperty       func(string) bool
	declared          bool
}

// NewPartialValidator creates a partial tier validator for the model's declared properties.
func NewPartialValidator[T any](model *Model[T], preventSchemaEcho, matchPartialKeys bool) *PartialValidator {
	return &PartialValidator{
		PreventSchemaEcho: preventSchemaEcho,
		MatchPartialKeys:  matchPartialKeys,
		hasProperty:       model.HasProperty,
		declared:          len(model.Properties()) > 0,
	}
}

// Check inspects a candidate JSON document. When complete is false the last top level key
// may still be growing and is ignored.
func (p *PartialValidator) Check(candidate string, complete bool) error {
	if p == nil {
		return nil
	}
	doc := gjson.Parse(candidate)
	if !doc.IsObject() {
		return nil
	}

	if p.PreventSchemaEcho {
		if typ := doc.Get("type"); typ.Type == gjson.String && typ.Str == "object" {
			return ErrSchemaEcho
		}
	}

	if !p.MatchPartialKeys || !p.declared {
		return nil
	}

	var keys []string
	doc.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	if !complete && len(keys) > 0 {
		keys = keys[:len(keys)-1]
	}
	for _, key := range keys {
		if !p.hasProperty(key) {
			return fmt.Errorf("%w: %q", ErrUnexpectedKey, key)
		}
	}
	return nil
}
