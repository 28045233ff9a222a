package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/casualjim/instruct/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Stream(t *testing.T) {
	p := New(Text(`{"name":"Ann"`, `,"age":`, `30}`))
	ctx := context.Background()

	s, err := p.Stream(ctx, provider.Request{Messages: []provider.Message{provider.User("hi")}})
	require.NoError(t, err)
	assert.Equal(t, 1, p.StreamCalls())
	assert.Equal(t, 0, p.Pulled())
	assert.Equal(t, 3, p.Remaining())

	frag, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ann"`, frag.ContentDelta)
	assert.Equal(t, 1, p.Pulled(), "exactly one fragment fetched")
	assert.Equal(t, 2, p.Remaining())
	assert.Equal(t, provider.StateStreaming, p.LastStream().State())

	_, err = s.Next(ctx)
	require.NoError(t, err)
	frag, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stop", frag.FinishReason)
	assert.Equal(t, provider.StateComplete, p.LastStream().State())

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Close())
	assert.True(t, p.LastStream().Closed())
	assert.Equal(t, provider.StateClosed, p.LastStream().State())

	_, err = p.Stream(ctx, provider.Request{})
	assert.ErrorIs(t, err, ErrNoScript)
	assert.Equal(t, 2, p.Calls())
	assert.Len(t, p.Requests(), 2)
	assert.Equal(t, "hi", p.Requests()[0].Messages[0].Content)
}

func TestProvider_Complete(t *testing.T) {
	boom := errors.New("connection reset")
	p := New(
		Text(`{"age":`, `21}`),
		Script{Response: &provider.InferenceResponse{Content: "plain", FinishReason: "stop"}},
		ToolCall("extract", `{"a":`, `1}`),
		Failure(boom),
	)
	ctx := context.Background()

	resp, err := p.Complete(ctx, provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"age":21}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)

	resp, err = p.Complete(ctx, provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.Content)

	resp, err = p.Complete(ctx, provider.Request{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, provider.ToolCall{ID: "call_extract", Name: "extract", Arguments: `{"a":1}`}, resp.ToolCalls[0])

	_, err = p.Complete(ctx, provider.Request{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, p.CompleteCalls())
	assert.Equal(t, 0, p.StreamCalls())
}

func TestProvider_StreamFromResponse(t *testing.T) {
	p := New(Script{Response: &provider.InferenceResponse{
		Content:   "hi",
		ToolCalls: []provider.ToolCall{{ID: "1", Name: "x", Arguments: "{}"}},
		Usage:     provider.Usage{TotalTokens: 3},
	}})

	s, err := p.Stream(context.Background(), provider.Request{})
	require.NoError(t, err)
	resp, err := provider.Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, int64(3), resp.Usage.TotalTokens)
	assert.Len(t, resp.ToolCalls, 1)
}

func TestStream_ErrorsAndCancellation(t *testing.T) {
	boom := errors.New("stream broke")
	p := New(Script{Fragments: []provider.PartialInferenceResponse{{ContentDelta: "a"}}, StreamErr: boom}, Text("x"))

	s, err := p.Stream(context.Background(), provider.Request{})
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, provider.StateError, p.LastStream().State())

	ctx, cancel := context.WithCancel(context.Background())
	s, err = p.Stream(ctx, provider.Request{})
	require.NoError(t, err)
	cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Pulled())

	_, err = p.Stream(ctx, provider.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordAndLoad(t *testing.T) {
	source := New(
		Text(`{"a":`, `1}`),
		Script{Response: &provider.InferenceResponse{Content: `{"b":2}`, FinishReason: "stop"}},
		Failure(errors.New("unauthorized")),
	)

	var buf bytes.Buffer
	rec := Record(source, &buf)
	ctx := context.Background()

	s, err := rec.Stream(ctx, provider.Request{})
	require.NoError(t, err)
	_, err = provider.Collect(ctx, s)
	require.NoError(t, err)

	_, err = rec.Complete(ctx, provider.Request{})
	require.NoError(t, err)

	_, err = rec.Stream(ctx, provider.Request{})
	require.Error(t, err)

	scripts, err := Load(&buf)
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Len(t, scripts[0].Fragments, 2)
	assert.Equal(t, "stop", scripts[0].Fragments[1].FinishReason)
	require.NotNil(t, scripts[1].Response)
	assert.Equal(t, `{"b":2}`, scripts[1].Response.Content)
	assert.EqualError(t, scripts[2].Err, "unauthorized")

	replayed := New(scripts...)
	resp, err := replayed.Complete(ctx, provider.Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Content)
}

func TestLoad(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"fragment","content_delta":"{\"x\""}`,
		`{"type":"fragment","content_delta":":1}"}`,
		``,
		`{"type":"fragment","content_delta":"partial"}`,
		`{"type":"error","error":"reset by peer"}`,
	}, "\n")

	scripts, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Len(t, scripts[0].Fragments, 2)
	assert.Len(t, scripts[1].Fragments, 1)
	assert.EqualError(t, scripts[1].StreamErr, "reset by peer")

	p, err := Open(strings.NewReader(input))
	require.NoError(t, err)
	assert.Contains(t, p.String(), "2 fragments")

	for _, bad := range []string{
		`not json`,
		`{"type":"unknown"}`,
		`{"type":"error"}`,
		`{"type":"response"}`,
	} {
		_, err := Load(strings.NewReader(bad))
		assert.Error(t, err, bad)
	}
}
