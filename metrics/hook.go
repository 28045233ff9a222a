// Package metrics exposes pipeline events as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/casualjim/instruct/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "instruct"

// Hook counts pipeline events. Register it with instruct.WithHook.
type Hook struct {
	// EventsTotal counts every event by type.
	// Labels: sender, type
	EventsTotal *prometheus.CounterVec

	// TokensTotal counts the tokens of every attempt. Fragment usage is cumulative within
	// an attempt, so only the terminal fragment is counted.
	// Labels: sender, direction (prompt, completion)
	TokensTotal *prometheus.CounterVec

	// ToolCallsTotal counts completed tool calls.
	// Labels: sender, tool
	ToolCallsTotal *prometheus.CounterVec

	// AttemptsExhausted observes how many attempts an execution used before giving up.
	// Labels: sender
	AttemptsExhausted *prometheus.HistogramVec
}

// NewHook creates the metrics and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewHook(reg prometheus.Registerer) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Hook{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Pipeline events by type",
		}, []string{"sender", "type"}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider",
		}, []string{"sender", "direction"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "tool_calls_total",
			Help:      "Completed tool calls by tool name",
		}, []string{"sender", "tool"}),
		AttemptsExhausted: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "exhausted_attempts",
			Help:      "Attempts used by executions that ran out of retries",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13, 21},
		}, []string{"sender"}),
	}
}

func (h *Hook) count(e events.Event) {
	h.EventsTotal.WithLabelValues(e.Meta().Sender, e.Type()).Inc()
}

func (h *Hook) OnFragmentReceived(_ context.Context, e events.FragmentReceived) {
	h.count(e)
	if !e.Fragment.IsTerminal() {
		return
	}
	if u := e.Fragment.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
		h.TokensTotal.WithLabelValues(e.Sender, "prompt").Add(float64(u.PromptTokens))
		h.TokensTotal.WithLabelValues(e.Sender, "completion").Add(float64(u.CompletionTokens))
	}
}

func (h *Hook) OnJSONExtracted(_ context.Context, e events.JSONExtracted) { h.count(e) }

func (h *Hook) OnToolCallStarted(_ context.Context, e events.ToolCallStarted) { h.count(e) }

func (h *Hook) OnToolCallUpdated(_ context.Context, e events.ToolCallUpdated) { h.count(e) }

func (h *Hook) OnToolCallCompleted(_ context.Context, e events.ToolCallCompleted) {
	h.count(e)
	h.ToolCallsTotal.WithLabelValues(e.Sender, e.Call.Name).Inc()
}

func (h *Hook) OnPartialObject(_ context.Context, e events.PartialObject) { h.count(e) }

func (h *Hook) OnRecoveryAttempt(_ context.Context, e events.RecoveryAttempt) { h.count(e) }

func (h *Hook) OnRecoveryLimitReached(_ context.Context, e events.RecoveryLimitReached) {
	h.count(e)
	h.AttemptsExhausted.WithLabelValues(e.Sender).Observe(float64(e.Attempts))
}

func (h *Hook) OnFinalObject(_ context.Context, e events.FinalObject) { h.count(e) }

func (h *Hook) OnError(_ context.Context, e events.Error) { h.count(e) }

var _ events.Hook = (*Hook)(nil)
