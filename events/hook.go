package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/instruct/pkg/slogx"
)

// Hook receives pipeline signals. Hooks are called synchronously from the goroutine that
// drives the execution, so they should return quickly.
type Hook interface {
	OnFragmentReceived(context.Context, FragmentReceived)
	OnJSONExtracted(context.Context, JSONExtracted)
	OnToolCallStarted(context.Context, ToolCallStarted)
	OnToolCallUpdated(context.Context, ToolCallUpdated)
	OnToolCallCompleted(context.Context, ToolCallCompleted)
	OnPartialObject(context.Context, PartialObject)
	OnRecoveryAttempt(context.Context, RecoveryAttempt)
	OnRecoveryLimitReached(context.Context, RecoveryLimitReached)
	OnFinalObject(context.Context, FinalObject)
	OnError(context.Context, Error)
}

// NopHook ignores every signal. Embed it to implement a subset of Hook.
type NopHook struct{}

func (NopHook) OnFragmentReceived(context.Context, FragmentReceived)         {}
func (NopHook) OnJSONExtracted(context.Context, JSONExtracted)               {}
func (NopHook) OnToolCallStarted(context.Context, ToolCallStarted)           {}
func (NopHook) OnToolCallUpdated(context.Context, ToolCallUpdated)           {}
func (NopHook) OnToolCallCompleted(context.Context, ToolCallCompleted)       {}
func (NopHook) OnPartialObject(context.Context, PartialObject)               {}
func (NopHook) OnRecoveryAttempt(context.Context, RecoveryAttempt)           {}
func (NopHook) OnRecoveryLimitReached(context.Context, RecoveryLimitReached) {}
func (NopHook) OnFinalObject(context.Context, FinalObject)                   {}
func (NopHook) OnError(context.Context, Error)                               {}

// Dispatch routes an event to the matching hook method.
func Dispatch(ctx context.Context, hook Hook, event Event) {
	if hook == nil || event == nil {
		return
	}
	switch e := event.(type) {
	case FragmentReceived:
		hook.OnFragmentReceived(ctx, e)
	case JSONExtracted:
		hook.OnJSONExtracted(ctx, e)
	case ToolCallStarted:
		hook.OnToolCallStarted(ctx, e)
	case ToolCallUpdated:
		hook.OnToolCallUpdated(ctx, e)
	case ToolCallCompleted:
		hook.OnToolCallCompleted(ctx, e)
	case PartialObject:
		hook.OnPartialObject(ctx, e)
	case RecoveryAttempt:
		hook.OnRecoveryAttempt(ctx, e)
	case RecoveryLimitReached:
		hook.OnRecoveryLimitReached(ctx, e)
	case FinalObject:
		hook.OnFinalObject(ctx, e)
	case Error:
		hook.OnError(ctx, e)
	default:
		panic(fmt.Sprintf("unknown event type: %T", event))
	}
}

// CompositeHook fans every signal out to its members in order.
type CompositeHook []Hook

// Compose builds a CompositeHook, skipping nil hooks.
func Compose(hooks ...Hook) CompositeHook {
	result := make(CompositeHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			result = append(result, h)
		}
	}
	return result
}

func (c CompositeHook) OnFragmentReceived(ctx context.Context, e FragmentReceived) {
	for _, h := range c {
		h.OnFragmentReceived(ctx, e)
	}
}

func (c CompositeHook) OnJSONExtracted(ctx context.Context, e JSONExtracted) {
	for _, h := range c {
		h.OnJSONExtracted(ctx, e)
	}
}

func (c CompositeHook) OnToolCallStarted(ctx context.Context, e ToolCallStarted) {
	for _, h := range c {
		h.OnToolCallStarted(ctx, e)
	}
}

func (c CompositeHook) OnToolCallUpdated(ctx context.Context, e ToolCallUpdated) {
	for _, h := range c {
		h.OnToolCallUpdated(ctx, e)
	}
}

func (c CompositeHook) OnToolCallCompleted(ctx context.Context, e ToolCallCompleted) {
	for _, h := range c {
		h.OnToolCallCompleted(ctx, e)
	}
}

func (c CompositeHook) OnPartialObject(ctx context.Context, e PartialObject) {
	for _, h := range c {
		h.OnPartialObject(ctx, e)
	}
}

func (c CompositeHook) OnRecoveryAttempt(ctx context.Context, e RecoveryAttempt) {
	for _, h := range c {
		h.OnRecoveryAttempt(ctx, e)
	}
}

func (c CompositeHook) OnRecoveryLimitReached(ctx context.Context, e RecoveryLimitReached) {
	for _, h := range c {
		h.OnRecoveryLimitReached(ctx, e)
	}
}

func (c CompositeHook) OnFinalObject(ctx context.Context, e FinalObject) {
	for _, h := range c {
		h.OnFinalObject(ctx, e)
	}
}

func (c CompositeHook) OnError(ctx context.Context, e Error) {
	for _, h := range c {
		h.OnError(ctx, e)
	}
}

// LoggingHook returns a hook that logs every signal. Fragments and extracted JSON are
// logged at debug level, objects and recovery at info, terminal failures at error.
func LoggingHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingHook{logger: logger.With(slogx.LoggerName("events"))}
}

type loggingHook struct {
	logger *slog.Logger
}

func (l *loggingHook) attrs(h Header, event string) []any {
	return []any{
		slog.String("event", event),
		slogx.RunID(h.RunID),
		slogx.Attempt(h.Attempt),
	}
}

func (l *loggingHook) OnFragmentReceived(ctx context.Context, e FragmentReceived) {
	l.logger.DebugContext(ctx, "fragment received", append(l.attrs(e.Header, e.Type()),
		slog.Int("index", e.Index),
		slogx.JSON("fragment", e.Fragment),
	)...)
}

func (l *loggingHook) OnJSONExtracted(ctx context.Context, e JSONExtracted) {
	l.logger.DebugContext(ctx, "json extracted", append(l.attrs(e.Header, e.Type()),
		slog.String("json", e.JSON),
		slog.Bool("complete", e.Complete),
	)...)
}

func (l *loggingHook) OnToolCallStarted(ctx context.Context, e ToolCallStarted) {
	l.logger.DebugContext(ctx, "tool call started", append(l.attrs(e.Header, e.Type()),
		slog.String("tool", e.Call.Name),
		slog.String("tool_id", e.Call.ID),
	)...)
}

func (l *loggingHook) OnToolCallUpdated(ctx context.Context, e ToolCallUpdated) {
	l.logger.DebugContext(ctx, "tool call updated", append(l.attrs(e.Header, e.Type()),
		slog.String("tool", e.Call.Name),
		slog.String("partial", e.Partial),
	)...)
}

func (l *loggingHook) OnToolCallCompleted(ctx context.Context, e ToolCallCompleted) {
	l.logger.DebugContext(ctx, "tool call completed", append(l.attrs(e.Header, e.Type()),
		slog.String("tool", e.Call.Name),
		slog.String("arguments", e.Call.Arguments),
	)...)
}

func (l *loggingHook) OnPartialObject(ctx context.Context, e PartialObject) {
	l.logger.InfoContext(ctx, "partial object", append(l.attrs(e.Header, e.Type()),
		slogx.JSON("object", e.Object),
		slog.Uint64("hash", e.Hash),
	)...)
}

func (l *loggingHook) OnRecoveryAttempt(ctx context.Context, e RecoveryAttempt) {
	l.logger.InfoContext(ctx, "recovery attempt", append(l.attrs(e.Header, e.Type()),
		slogx.Error(e.Err),
		slog.Int("feedback_messages", len(e.Feedback)),
	)...)
}

func (l *loggingHook) OnRecoveryLimitReached(ctx context.Context, e RecoveryLimitReached) {
	l.logger.WarnContext(ctx, "recovery limit reached", append(l.attrs(e.Header, e.Type()),
		slog.Int("attempts", e.Attempts),
		slogx.Error(e.Err),
	)...)
}

func (l *loggingHook) OnFinalObject(ctx context.Context, e FinalObject) {
	l.logger.InfoContext(ctx, "final object", append(l.attrs(e.Header, e.Type()),
		slogx.JSON("object", e.Object),
	)...)
}

func (l *loggingHook) OnError(ctx context.Context, e Error) {
	l.logger.ErrorContext(ctx, "execution failed", append(l.attrs(e.Header, e.Type()),
		slogx.Error(e.Err),
	)...)
}
