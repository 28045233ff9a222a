package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/casualjim/instruct/provider"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type mockHook struct {
	received []Event
}

func (m *mockHook) OnFragmentReceived(_ context.Context, e FragmentReceived) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnJSONExtracted(_ context.Context, e JSONExtracted) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnToolCallStarted(_ context.Context, e ToolCallStarted) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnToolCallUpdated(_ context.Context, e ToolCallUpdated) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnToolCallCompleted(_ context.Context, e ToolCallCompleted) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnPartialObject(_ context.Context, e PartialObject) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnRecoveryAttempt(_ context.Context, e RecoveryAttempt) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnRecoveryLimitReached(_ context.Context, e RecoveryLimitReached) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnFinalObject(_ context.Context, e FinalObject) {
	m.received = append(m.received, e)
}

func (m *mockHook) OnError(_ context.Context, e Error) {
	m.received = append(m.received, e)
}

func allEvents(h Header) []Event {
	call := provider.ToolCall{ID: "call_1", Name: "extract", Arguments: `{"a":1}`}
	return []Event{
		FragmentReceived{Header: h, Index: 1, Fragment: provider.PartialInferenceResponse{ContentDelta: `{"a"`}},
		JSONExtracted{Header: h, JSON: `{}`},
		ToolCallStarted{Header: h, Call: call},
		ToolCallUpdated{Header: h, Call: call, Partial: `{"a":1}`},
		ToolCallCompleted{Header: h, Call: call},
		PartialObject{Header: h, Object: map[string]any{"a": 1.0}, Hash: 42},
		RecoveryAttempt{Header: h, Err: errors.New("bad"), Feedback: []provider.Message{provider.User("fix it")}},
		RecoveryLimitReached{Header: h, Attempts: 2, Err: errors.New("bad")},
		FinalObject{Header: h, Object: map[string]any{"a": 1.0}},
		Error{Header: h, Err: errors.New("boom")},
	}
}

func TestDispatch(t *testing.T) {
	h := NewHeader(uuid.New(), 1, "test")
	evts := allEvents(h)

	hook := &mockHook{}
	for _, e := range evts {
		Dispatch(context.Background(), hook, e)
	}
	assert.Equal(t, evts, hook.received)

	assert.NotPanics(t, func() { Dispatch(context.Background(), nil, evts[0]) })
	assert.NotPanics(t, func() { Dispatch(context.Background(), hook, nil) })
}

func TestCompositeHook(t *testing.T) {
	first, second := &mockHook{}, &mockHook{}
	hook := Compose(first, nil, second)
	require.Len(t, hook, 2)

	evts := allEvents(NewHeader(uuid.New(), 2, ""))
	for _, e := range evts {
		Dispatch(context.Background(), hook, e)
	}
	assert.Equal(t, evts, first.received)
	assert.Equal(t, evts, second.received)
}

func TestNopHook(t *testing.T) {
	var hook Hook = NopHook{}
	for _, e := range allEvents(NewHeader(uuid.New(), 1, "")) {
		assert.NotPanics(t, func() { Dispatch(context.Background(), hook, e) })
	}
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hook := LoggingHook(logger)

	runID := uuid.New()
	for _, e := range allEvents(NewHeader(runID, 3, "test")) {
		Dispatch(context.Background(), hook, e)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 10)
	for _, line := range lines {
		require.True(t, gjson.Valid(line), line)
		assert.Equal(t, runID.String(), gjson.Get(line, "run_id").String())
		assert.Equal(t, int64(3), gjson.Get(line, "attempt").Int())
		assert.Equal(t, "events", gjson.Get(line, "logger").String())
	}
	assert.Equal(t, "fragment_received", gjson.Get(lines[0], "event").String())
	assert.Equal(t, "DEBUG", gjson.Get(lines[0], "level").String())
	assert.Equal(t, `{"a":1}`, gjson.Get(lines[5], "object").String())
	assert.Equal(t, "WARN", gjson.Get(lines[7], "level").String())
	assert.Equal(t, "ERROR", gjson.Get(lines[9], "level").String())
	assert.Equal(t, "boom", gjson.Get(lines[9], "error").String())

	assert.NotNil(t, LoggingHook(nil))
}
