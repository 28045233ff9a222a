package response

import (
	"testing"

	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type person struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age" validate:"gte=0,lte=150"`
}

type withOptional struct {
	ID    string `json:"id"`
	Notes string `json:"notes,omitempty"`
}

type label string

func TestNewModel(t *testing.T) {
	m, err := NewModel[person]()
	require.NoError(t, err)

	assert.Equal(t, "person", m.Name())
	assert.Equal(t, KindValue, m.Kind())
	assert.Equal(t, []string{"name", "age"}, m.Properties())
	assert.ElementsMatch(t, []string{"name", "age"}, m.Required())
	assert.True(t, m.HasProperty("age"))
	assert.False(t, m.HasProperty("email"))
	assert.Contains(t, m.Description(), "`person`")
	require.NotNil(t, m.Schema())
	assert.Equal(t, "object", m.Schema().Type)
	assert.False(t, m.Validatable())

	schema, err := m.SchemaJSON()
	require.NoError(t, err)
	assert.Equal(t, "object", gjson.Get(schema, "type").String())
	assert.True(t, gjson.Get(schema, "properties.name").Exists())
	assert.False(t, gjson.Get(schema, "additionalProperties").Bool())

	out := m.StructuredOutput()
	assert.Equal(t, "person", out.Name)
	assert.Same(t, m.Schema(), out.Schema)
}

func TestNewModel_Optional(t *testing.T) {
	m, err := NewModel[withOptional]()
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, m.Required())
	assert.Equal(t, []string{"id", "notes"}, m.Properties())
}

func TestNewModel_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		build func() (Kind, error)
		want  Kind
	}{
		{"struct", func() (Kind, error) { m, err := NewModel[person](); return kindOf(m, err) }, KindValue},
		{"pointer", func() (Kind, error) { m, err := NewModel[*person](); return kindOf(m, err) }, KindValue},
		{"slice", func() (Kind, error) { m, err := NewModel[[]person](); return kindOf(m, err) }, KindValue},
		{"string", func() (Kind, error) { m, err := NewModel[string](); return kindOf(m, err) }, KindString},
		{"named string", func() (Kind, error) { m, err := NewModel[label](); return kindOf(m, err) }, KindString},
		{"gjson", func() (Kind, error) { m, err := NewModel[gjson.Result](); return kindOf(m, err) }, KindGJSON},
		{"any", func() (Kind, error) { m, err := NewModel[any](); return kindOf(m, err) }, KindDynamic},
		{"map", func() (Kind, error) { m, err := NewModel[map[string]any](); return kindOf(m, err) }, KindDynamic},
		{"typed map", func() (Kind, error) { m, err := NewModel[map[string]int](); return kindOf(m, err) }, KindValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func kindOf[T any](m *Model[T], err error) (Kind, error) {
	if err != nil {
		return 0, err
	}
	return m.Kind(), nil
}

func TestNewModel_Unsupported(t *testing.T) {
	_, err := NewModel[chan int]()
	require.ErrorIs(t, err, ErrUnsupportedTarget)

	_, err = NewModel[func()]()
	require.ErrorIs(t, err, ErrUnsupportedTarget)

	_, err = NewModel[[]complex128]()
	require.ErrorIs(t, err, ErrUnsupportedTarget)

	_, err = NewModel[error]()
	require.ErrorIs(t, err, ErrUnsupportedTarget)
}

func TestModelFor_Cached(t *testing.T) {
	m1, err := ModelFor[person]()
	require.NoError(t, err)
	m2, err := ModelFor[person]()
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	p1, err := ModelFor[*person]()
	require.NoError(t, err)
	assert.Equal(t, KindValue, p1.Kind())
}

func TestModel_Named(t *testing.T) {
	m, err := NewModel[person]()
	require.NoError(t, err)

	named := m.Named("Person", "")
	assert.Equal(t, "Person", named.Name())
	assert.Equal(t, m.Description(), named.Description())
	assert.Equal(t, "person", m.Name(), "original is unchanged")
}

func firstLocalModel() (string, []string, error) {
	type item struct {
		Name string `json:"name"`
	}
	m, err := ModelFor[item]()
	if err != nil {
		return "", nil, err
	}
	return m.Name(), m.Properties(), nil
}

func secondLocalModel() (string, []string, error) {
	type item struct {
		Age int `json:"age"`
	}
	m, err := ModelFor[item]()
	if err != nil {
		return "", nil, err
	}
	return m.Name(), m.Properties(), nil
}

func TestModelFor_LocalTypesWithSameName(t *testing.T) {
	require.NotPanics(t, func() {
		name, props, err := firstLocalModel()
		require.NoError(t, err)
		assert.Equal(t, "item", name)
		assert.Equal(t, []string{"name"}, props)

		name, props, err = secondLocalModel()
		require.NoError(t, err)
		assert.Equal(t, "item", name)
		assert.Equal(t, []string{"age"}, props)

		_, props, err = firstLocalModel()
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, props, "served from the cache of the first type")
	})
}

func TestModel_Shape(t *testing.T) {
	tests := []struct {
		name  string
		shape func() (jsonx.Shape, error)
		want  jsonx.Shape
	}{
		{"struct", shapeOf[person], jsonx.ObjectShape},
		{"pointer to struct", shapeOf[*person], jsonx.ObjectShape},
		{"map of ints", shapeOf[map[string]int], jsonx.ObjectShape},
		{"slice", shapeOf[[]person], jsonx.ArrayShape},
		{"scalar", shapeOf[int], jsonx.AnyShape},
		{"dynamic", shapeOf[any], jsonx.AnyShape},
		{"gjson", shapeOf[gjson.Result], jsonx.AnyShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.shape()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func shapeOf[T any]() (jsonx.Shape, error) {
	m, err := NewModel[T]()
	if err != nil {
		return jsonx.AnyShape, err
	}
	return m.Shape(), nil
}
