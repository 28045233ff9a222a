package metrics_test

import (
	"context"
	"testing"

	"github.com/casualjim/instruct"
	"github.com/casualjim/instruct/metrics"
	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/provider/replay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ageOnly struct {
	Age int `json:"age"`
}

func TestHook_Recovery(t *testing.T) {
	h := metrics.NewHook(prometheus.NewRegistry())
	p := replay.New(replay.Text("not json"), replay.Text(`{"age":21}`))

	x, err := instruct.New[ageOnly](p,
		instruct.WithMode(provider.ModeJSON),
		instruct.WithMaxRetries(1),
		instruct.WithSender("metrics-test"),
		instruct.WithHook(h),
	)
	require.NoError(t, err)

	got, err := x.Extract(context.Background(), provider.User("how old?"))
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)

	assert.InDelta(t, 2, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "fragment_received")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "recovery_attempt")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "final_object")), 0)
	assert.Equal(t, 0, testutil.CollectAndCount(h.AttemptsExhausted))
}

func TestHook_Exhaustion(t *testing.T) {
	h := metrics.NewHook(prometheus.NewRegistry())
	p := replay.New(replay.Text("nope"), replay.Text("still nope"))

	x, err := instruct.New[ageOnly](p,
		instruct.WithMode(provider.ModeJSON),
		instruct.WithMaxRetries(1),
		instruct.WithSender("metrics-test"),
		instruct.WithHook(h),
	)
	require.NoError(t, err)

	_, err = x.Extract(context.Background(), provider.User("how old?"))
	require.ErrorIs(t, err, instruct.ErrRecoveryExhausted)

	assert.InDelta(t, 1, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "recovery_limit_reached")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(h.AttemptsExhausted))
}

func TestHook_TokensAndToolCalls(t *testing.T) {
	h := metrics.NewHook(prometheus.NewRegistry())
	script := replay.ToolCall("extract_age", `{"age":`, `21}`)
	script.Fragments[len(script.Fragments)-1].Usage = provider.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}

	x, err := instruct.New[ageOnly](replay.New(script),
		instruct.WithTool("extract_age", "Extract the age"),
		instruct.Streaming(true),
		instruct.WithSender("metrics-test"),
		instruct.WithHook(h),
	)
	require.NoError(t, err)

	got, err := x.Extract(context.Background(), provider.User("Ann is 21"))
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)

	assert.InDelta(t, 12, testutil.ToFloat64(h.TokensTotal.WithLabelValues("metrics-test", "prompt")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(h.TokensTotal.WithLabelValues("metrics-test", "completion")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.ToolCallsTotal.WithLabelValues("metrics-test", "extract_age")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "fragment_received")), 0)
}

func TestHook_TokensCountedOncePerAttempt(t *testing.T) {
	h := metrics.NewHook(prometheus.NewRegistry())
	script := replay.Script{Fragments: []provider.PartialInferenceResponse{
		{ContentDelta: `{"age":`, Usage: provider.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}},
		{ContentDelta: `21}`, FinishReason: "stop", Usage: provider.Usage{PromptTokens: 12, CompletionTokens: 10, TotalTokens: 22}},
	}}

	x, err := instruct.New[ageOnly](replay.New(script),
		instruct.WithMode(provider.ModeJSON),
		instruct.Streaming(true),
		instruct.WithSender("metrics-test"),
		instruct.WithHook(h),
	)
	require.NoError(t, err)

	got, err := x.Extract(context.Background(), provider.User("Ann is 21"))
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)

	assert.InDelta(t, 12, testutil.ToFloat64(h.TokensTotal.WithLabelValues("metrics-test", "prompt")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(h.TokensTotal.WithLabelValues("metrics-test", "completion")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.EventsTotal.WithLabelValues("metrics-test", "fragment_received")), 0)
}

func TestNewHook_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewHook(reg)
	assert.Panics(t, func() { metrics.NewHook(reg) })
}
