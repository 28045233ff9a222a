package jsonx

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"pgregory.net/rapid"
)

func TestExtractPartial(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		complete bool
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace", input: " \n\t ", want: ""},
		{name: "prose only", input: "Sure, here you go", want: ""},
		{name: "open object", input: "{", want: "{}"},
		{name: "closed value", input: `{"name":"Ann"`, want: `{"name":"Ann"}`},
		{name: "dangling key", input: `{"name":"Ann","age":`, want: `{"name":"Ann"}`},
		{name: "dangling comma", input: `{"name":"Ann",`, want: `{"name":"Ann"}`},
		{name: "mid key", input: `{"name":"Ann","ag`, want: `{"name":"Ann"}`},
		{name: "mid string", input: `{"name":"An`, want: `{}`},
		{name: "mid number", input: `{"name":"Ann","age":3`, want: `{"name":"Ann"}`},
		{name: "number closed by separator", input: `{"age":30,`, want: `{"age":30}`},
		{name: "complete", input: `{"name":"Ann","age":30}`, want: `{"name":"Ann","age":30}`, complete: true},
		{name: "trailing text ignored", input: `{"a":1} and more`, want: `{"a":1}`, complete: true},
		{name: "literal at end", input: `{"ok":true`, want: `{"ok":true}`},
		{name: "partial literal", input: `{"ok":tr`, want: `{}`},
		{name: "nested", input: `{"a":{"b":[1,2`, want: `{"a":{"b":[1]}}`},
		{name: "nested open", input: `{"a":[`, want: `{"a":[]}`},
		{name: "array root", input: `[{"a":1},{"a"`, want: `[{"a":1},{}]`},
		{name: "escaped quote", input: `{"q":"say \"hi\"","r":"x`, want: `{"q":"say \"hi\""}`},
		{name: "brace inside string", input: `{"q":"}{"`, want: `{"q":"}{"}`},
		{name: "prose prefix", input: "Here is the data: {\"a\":\"b\"", want: `{"a":"b"}`},
		{name: "markdown fence", input: "```json\n{\"a\":\"b\"", want: `{"a":"b"}`},
		{name: "complete fence", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`, complete: true},
		{name: "invalid token", input: `{"a":1,"b":x}`, want: `{"a":1}`},
		{name: "mismatched bracket", input: `{"a":[1}`, want: `{"a":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, complete := ExtractPartial(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.complete, complete)
			if got != "" {
				assert.True(t, gjson.Valid(got), "result must be valid JSON: %s", got)
			}
		})
	}
}

func TestExtractPartialShape(t *testing.T) {
	const prose = "Per source [1], the answer is "

	got, _ := ExtractPartialShape(prose, ObjectShape)
	assert.Empty(t, got, "a citation is not an object")

	got, _ = ExtractPartialShape(prose+`{"age":`, ObjectShape)
	assert.Equal(t, `{}`, got)

	got, complete := ExtractPartialShape(prose+`{"age":21}`, ObjectShape)
	assert.Equal(t, `{"age":21}`, got)
	assert.True(t, complete)

	got, complete = ExtractPartial(prose + `{"age":21}`)
	assert.Equal(t, `[1]`, got, "without a shape the first bracket wins")
	assert.True(t, complete)

	got, _ = ExtractPartialShape(`{"a":1} then [1,`, ArrayShape)
	assert.Equal(t, `[1]`, got)
}

func TestAssembler_Shape(t *testing.T) {
	a := Assembler{Shape: ObjectShape}
	a.Write("Per source [1], the answer is ")
	got, _ := a.Extract()
	assert.Empty(t, got)

	a.Write(`{"age":21}`)
	got, complete := a.Extract()
	assert.Equal(t, `{"age":21}`, got)
	assert.True(t, complete)
}

func TestAssembler(t *testing.T) {
	var a Assembler

	got, _ := a.Extract()
	assert.Empty(t, got)

	a.Write(`{"name":"Ann"`)
	got, complete := a.Extract()
	assert.Equal(t, `{"name":"Ann"}`, got)
	assert.False(t, complete)

	a.Write(`,"age":`)
	got, _ = a.Extract()
	assert.Equal(t, `{"name":"Ann"}`, got)

	a.Write(`30}`)
	got, complete = a.Extract()
	assert.Equal(t, `{"name":"Ann","age":30}`, got)
	assert.True(t, complete)
	assert.Equal(t, `{"name":"Ann","age":30}`, a.Buffer())

	a.Reset()
	assert.Empty(t, a.Buffer())
}

func jsonValue(depth int) *rapid.Generator[any] {
	return rapid.Custom(func(t *rapid.T) any {
		kind := rapid.IntRange(0, 6).Draw(t, "kind")
		if depth <= 0 && kind >= 5 {
			kind = 0
		}
		switch kind {
		case 0:
			return rapid.String().Draw(t, "string")
		case 1:
			return rapid.Int64().Draw(t, "int")
		case 2:
			return rapid.Float64Range(-1e6, 1e6).Draw(t, "float")
		case 3:
			return rapid.Bool().Draw(t, "bool")
		case 4:
			return nil
		case 5:
			return rapid.SliceOfN(jsonValue(depth-1), 0, 4).Draw(t, "array")
		default:
			return rapid.MapOfN(rapid.StringMatching(`[a-z_"\\]{1,6}`), jsonValue(depth-1), 0, 4).Draw(t, "object")
		}
	})
}

func TestExtractPartial_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := rapid.MapOfN(rapid.StringMatching(`[a-z]{1,6}`), jsonValue(3), 0, 5).Draw(t, "root")
		doc, err := json.Marshal(root)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		text := string(doc)

		prevLen := 0
		for k := 0; k <= len(text); k++ {
			got, complete := ExtractPartial(text[:k])
			if got != "" && !gjson.Valid(got) {
				t.Fatalf("prefix %q produced invalid JSON %q", text[:k], got)
			}
			if len(got) < prevLen {
				t.Fatalf("extraction shrank at prefix %q: %d < %d", text[:k], len(got), prevLen)
			}
			prevLen = len(got)
			if complete && k < len(text) {
				t.Fatalf("prefix %q reported complete", text[:k])
			}
		}

		got, complete := ExtractPartial(text)
		if !complete || got != text {
			t.Fatalf("full document not reproduced: %q vs %q", got, text)
		}
	})
}

func TestExtractPartial_LargeBuffer(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"items":[`)
	for i := 0; i < 1000; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"id":1}`)
	}
	got, complete := ExtractPartial(b.String())
	assert.False(t, complete)
	assert.True(t, strings.HasSuffix(got, `{"id":1}]}`))
}
