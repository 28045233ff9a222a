package response

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/casualjim/instruct/provider"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrUnsupportedTarget is returned when a target type can not be represented as JSON.
var ErrUnsupportedTarget = errors.New("unsupported target type")

// Kind selects the strategy used to map assembled JSON onto a target type.
type Kind int

const (
	// KindValue decodes into structs, slices, maps and scalars with goccy/go-json.
	KindValue Kind = iota
	// KindGJSON keeps the parsed gjson.Result.
	KindGJSON
	// KindString keeps the raw text.
	KindString
	// KindDynamic decodes into an untyped value.
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindGJSON:
		return "gjson"
	case KindString:
		return "string"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Structured Outputs uses a subset of JSON schema
// These flags are necessary to comply with the subset
var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

var (
	gjsonResultType = reflect.TypeFor[gjson.Result]()
	validatableType = reflect.TypeFor[Validatable]()
)

type validatableMode int

const (
	notValidatable validatableMode = iota
	valueValidatable
	pointerValidatable
)

// models caches one *Model[T] per reflect.Type. Local types that share a name in one
// package are distinct types, so the type itself is the key.
var models sync.Map

// Model describes the target shape of an extraction: the reflected JSON schema, the ordered
// set of declared properties, the required set and the decoding strategy.
// A Model is immutable once built and safe to share.
type Model[T any] struct {
	name        string
	description string
	typ         reflect.Type
	kind        Kind
	shape       jsonx.Shape
	schema      *jsonschema.Schema
	properties  *orderedmap.OrderedMap[string, *jsonschema.Schema]
	required    []string
	structTags  bool
	validatable validatableMode
}

// ModelFor returns the cached Model for T, building it on first use.
func ModelFor[T any]() (*Model[T], error) {
	key := reflect.TypeFor[T]()
	if cached, ok := models.Load(key); ok {
		if m, ok := cached.(*Model[T]); ok {
			return m, nil
		}
	}

	m, err := NewModel[T]()
	if err != nil {
		return nil, err
	}
	if cached, loaded := models.LoadOrStore(key, m); loaded {
		if prev, ok := cached.(*Model[T]); ok {
			return prev, nil
		}
	}
	return m, nil
}

// NewModel reflects T into a Model without consulting the cache.
func NewModel[T any]() (*Model[T], error) {
	typ := reflect.TypeFor[T]()
	kind, err := resolveKind(typ)
	if err != nil {
		return nil, err
	}

	m := &Model[T]{
		name: typeName(typ),
		typ:  typ,
		kind: kind,
	}
	m.description = fmt.Sprintf("Correctly extracted `%s` with all the required parameters with correct types", m.name)

	if kind == KindValue {
		schema := reflector.ReflectFromType(typ)
		schema.Version = ""
		schema.ID = ""
		m.schema = schema
		m.properties = schema.Properties
		m.required = append([]string(nil), schema.Required...)
		if schema.Description != "" {
			m.description = schema.Description
		}
	}

	base := typ
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	m.structTags = base.Kind() == reflect.Struct
	if kind == KindValue {
		switch base.Kind() {
		case reflect.Struct, reflect.Map:
			m.shape = jsonx.ObjectShape
		case reflect.Slice, reflect.Array:
			m.shape = jsonx.ArrayShape
		}
	}

	switch {
	case typ.Implements(validatableType):
		m.validatable = valueValidatable
	case typ.Kind() != reflect.Pointer && reflect.PointerTo(typ).Implements(validatableType):
		m.validatable = pointerValidatable
	}
	return m, nil
}

// Named returns a copy of the model carrying a different name and description.
// Empty arguments keep the current values.
func (m *Model[T]) Named(name, description string) *Model[T] {
	cp := *m
	if name != "" {
		cp.name = name
	}
	if description != "" {
		cp.description = description
	}
	return &cp
}

func (m *Model[T]) Name() string               { return m.name }
func (m *Model[T]) Description() string        { return m.description }
func (m *Model[T]) Kind() Kind                 { return m.kind }
func (m *Model[T]) Shape() jsonx.Shape         { return m.shape }
func (m *Model[T]) Type() reflect.Type         { return m.typ }
func (m *Model[T]) Schema() *jsonschema.Schema { return m.schema }

// Validatable reports whether T (or *T) implements Validatable.
func (m *Model[T]) Validatable() bool {
	return m.validatable != notValidatable
}

// Properties returns the declared top level property names in declaration order.
func (m *Model[T]) Properties() []string {
	if m.properties == nil {
		return nil
	}
	names := make([]string, 0, m.properties.Len())
	for pair := m.properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// HasProperty reports whether name is a declared top level property.
func (m *Model[T]) HasProperty(name string) bool {
	if m.properties == nil {
		return false
	}
	_, ok := m.properties.Get(name)
	return ok
}

// Required returns the top level properties that must be present in a complete response.
func (m *Model[T]) Required() []string {
	return append([]string(nil), m.required...)
}

// StructuredOutput describes the model for a provider request.
func (m *Model[T]) StructuredOutput() *provider.StructuredOutput {
	return &provider.StructuredOutput{
		Name:        m.name,
		Description: m.description,
		Schema:      m.schema,
	}
}

// SchemaJSON renders the schema, or an empty string for schemaless targets.
func (m *Model[T]) SchemaJSON() (string, error) {
	if m.schema == nil {
		return "", nil
	}
	b, err := json.Marshal(m.schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema for %s: %w", m.name, err)
	}
	return string(b), nil
}

func resolveKind(typ reflect.Type) (Kind, error) {
	switch {
	case typ == gjsonResultType:
		return KindGJSON, nil
	case typ.Kind() == reflect.String:
		return KindString, nil
	case typ.Kind() == reflect.Interface && typ.NumMethod() == 0:
		return KindDynamic, nil
	case typ.Kind() == reflect.Map && typ.Key().Kind() == reflect.String && typ.Elem().Kind() == reflect.Interface:
		return KindDynamic, nil
	}
	if err := checkSupported(typ, 0); err != nil {
		return 0, err
	}
	return KindValue, nil
}

func checkSupported(typ reflect.Type, depth int) error {
	switch typ.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Invalid:
		return fmt.Errorf("%w: %s", ErrUnsupportedTarget, typ)
	case reflect.Interface:
		if typ.NumMethod() > 0 {
			return fmt.Errorf("%w: %s", ErrUnsupportedTarget, typ)
		}
	case reflect.Pointer, reflect.Slice, reflect.Array:
		if depth < 8 {
			return checkSupported(typ.Elem(), depth+1)
		}
	case reflect.Map:
		if !isTextKey(typ.Key()) {
			return fmt.Errorf("%w: %s", ErrUnsupportedTarget, typ)
		}
		if depth < 8 {
			return checkSupported(typ.Elem(), depth+1)
		}
	}
	return nil
}

func isTextKey(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func typeName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Name() != "" {
		return typ.Name()
	}
	return "Response"
}
