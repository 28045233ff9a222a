package response

import (
	"errors"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Deserializer maps assembled JSON onto T using the strategy resolved by its Model.
type Deserializer[T any] struct {
	model  *Model[T]
	strict bool
}

// NewDeserializer creates a deserializer for the model. With strict set, complete
// documents containing fields the target does not declare are rejected.
func NewDeserializer[T any](model *Model[T], strict bool) *Deserializer[T] {
	return &Deserializer[T]{model: model, strict: strict}
}

// Decode maps data onto T. Partial decodes tolerate missing required fields and unknown
// fields; complete decodes enforce both.
func (d *Deserializer[T]) Decode(data string, partial bool) (T, error) {
	var zero T
	if strings.TrimSpace(data) == "" {
		return zero, ErrEmptyContent
	}

	switch d.model.kind {
	case KindString:
		return reflect.ValueOf(data).Convert(d.model.typ).Interface().(T), nil
	case KindGJSON:
		if !gjson.Valid(data) {
			return zero, invalidJSON(data)
		}
		return any(gjson.Parse(data)).(T), nil
	}

	if !gjson.Valid(data) {
		return zero, invalidJSON(data)
	}

	if !partial && d.model.kind == KindValue {
		if err := d.checkRequired(data); err != nil {
			return zero, err
		}
	}

	var value T
	dec := json.NewDecoder(strings.NewReader(data))
	if d.strict && !partial && d.model.kind == KindValue && d.model.structTags {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&value); err != nil {
		return zero, decodeError(err)
	}
	return value, nil
}

func (d *Deserializer[T]) checkRequired(data string) error {
	if len(d.model.required) == 0 {
		return nil
	}
	doc := gjson.Parse(data)
	if !doc.IsObject() {
		return NewValidationError("", nil, "expected a JSON object, got "+jsonKind(doc))
	}

	present := make(map[string]struct{})
	doc.ForEach(func(key, _ gjson.Result) bool {
		present[key.String()] = struct{}{}
		return true
	})

	var result ValidationResult
	for _, name := range d.model.required {
		if _, ok := present[name]; !ok {
			result.Errors = append(result.Errors, FieldError{Field: name, Message: "field required"})
		}
	}
	return result.Err()
}

// jsonKind names the JSON type of r the way a reader of the document would.
func jsonKind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	case r.IsBool():
		return "boolean"
	}
	switch r.Type {
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		return "null"
	}
}

func invalidJSON(data string) error {
	const maxShown = 200
	shown := data
	if len(shown) > maxShown {
		shown = shown[:maxShown] + "..."
	}
	return &ValidationError{
		Errors: []FieldError{{Message: "invalid JSON: " + shown}},
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return &ValidationError{Errors: []FieldError{{Message: err.Error()}}, Err: err}
		}
		msg := "expected " + typeErr.Type.String()
		if typeErr.Value != "" {
			msg = "expected " + typeErr.Type.String() + ", got " + typeErr.Value
		}
		return &ValidationError{Errors: []FieldError{{Field: field, Message: msg}}, Err: err}
	}

	if _, rest, ok := strings.Cut(err.Error(), "unknown field "); ok {
		field := strings.Trim(rest, `"`)
		return &ValidationError{Errors: []FieldError{{Field: field, Message: "extra fields not permitted"}}, Err: err}
	}

	return &ValidationError{Errors: []FieldError{{Message: err.Error()}}, Err: err}
}
