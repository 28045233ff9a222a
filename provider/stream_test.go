package provider

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	frags  []PartialInferenceResponse
	err    error
	pos    int
	closed int
}

func (s *sliceStream) Next(context.Context) (PartialInferenceResponse, error) {
	if s.pos >= len(s.frags) {
		if s.err != nil {
			return PartialInferenceResponse{}, s.err
		}
		return PartialInferenceResponse{}, io.EOF
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.closed++
	return nil
}

func TestCollect(t *testing.T) {
	t.Run("content", func(t *testing.T) {
		s := &sliceStream{frags: []PartialInferenceResponse{
			{ContentDelta: `{"name":"Ann"`},
			{ContentDelta: `,"age":`},
			{ContentDelta: `30}`, FinishReason: "stop", Usage: Usage{TotalTokens: 7}},
		}}

		resp, err := Collect(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"Ann","age":30}`, resp.Content)
		assert.Equal(t, "stop", resp.FinishReason)
		assert.Equal(t, int64(7), resp.Usage.TotalTokens)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("tool calls", func(t *testing.T) {
		s := &sliceStream{frags: []PartialInferenceResponse{
			{ToolID: "a", ToolName: "first"},
			{ToolArgs: `{"x":`},
			{ToolArgs: `1}`},
			{ToolID: "b", ToolName: "second"},
			{ToolArgs: `{}`, FinishReason: "tool_calls"},
		}}

		resp, err := Collect(context.Background(), s)
		require.NoError(t, err)
		require.Len(t, resp.ToolCalls, 2)
		assert.Equal(t, ToolCall{ID: "a", Name: "first", Arguments: `{"x":1}`}, resp.ToolCalls[0])
		assert.Equal(t, ToolCall{ID: "b", Name: "second", Arguments: `{}`}, resp.ToolCalls[1])
	})

	t.Run("name deltas", func(t *testing.T) {
		s := &sliceStream{frags: []PartialInferenceResponse{
			{ToolID: "a", ToolName: "ext"},
			{ToolName: "ract"},
			{ToolArgs: `{}`},
			{ToolName: "other", ToolArgs: `[]`, FinishReason: "tool_calls"},
		}}

		resp, err := Collect(context.Background(), s)
		require.NoError(t, err)
		require.Len(t, resp.ToolCalls, 2)
		assert.Equal(t, ToolCall{ID: "a", Name: "extract", Arguments: `{}`}, resp.ToolCalls[0])
		assert.Equal(t, ToolCall{Name: "other", Arguments: `[]`}, resp.ToolCalls[1])
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		s := &sliceStream{frags: []PartialInferenceResponse{{ContentDelta: "x"}}, err: boom}

		_, err := Collect(context.Background(), s)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, s.closed)
	})
}

func TestStartsNewToolCall(t *testing.T) {
	cases := []struct {
		name    string
		current ToolCall
		frag    PartialInferenceResponse
		want    bool
	}{
		{"same id", ToolCall{ID: "a", Name: "x"}, PartialInferenceResponse{ToolID: "a", ToolArgs: "{"}, false},
		{"different id", ToolCall{ID: "a", Name: "x"}, PartialInferenceResponse{ToolID: "b"}, true},
		{"id on unnamed current", ToolCall{}, PartialInferenceResponse{ToolID: "b"}, false},
		{"name before arguments", ToolCall{ID: "a", Name: "ext"}, PartialInferenceResponse{ToolName: "ract"}, false},
		{"name after arguments", ToolCall{Name: "x", Arguments: "{}"}, PartialInferenceResponse{ToolName: "y"}, true},
		{"arguments only", ToolCall{Name: "x", Arguments: "{"}, PartialInferenceResponse{ToolArgs: "}"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StartsNewToolCall(tc.current, tc.frag))
		})
	}
}

func TestStreamState_String(t *testing.T) {
	assert.Equal(t, "new", StateNew.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "complete", StateComplete.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", StreamState(42).String())
}
