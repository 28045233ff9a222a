package pubsub

import (
	"context"
	"log/slog"

	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/pkg/slogx"
)

// Publisher returns a hook that publishes every event it observes to topic.
// Publish failures are logged and never reach the execution.
func Publisher(topic Topic) events.Hook {
	return &publisher{topic: topic}
}

type publisher struct {
	topic Topic
}

func (p *publisher) publish(ctx context.Context, e events.Event) {
	if err := p.topic.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to publish event",
			slogx.Error(err),
			slog.String("event", e.Type()),
			slog.String("run_id", e.Meta().RunID.String()),
		)
	}
}

func (p *publisher) OnFragmentReceived(ctx context.Context, e events.FragmentReceived) {
	p.publish(ctx, e)
}

func (p *publisher) OnJSONExtracted(ctx context.Context, e events.JSONExtracted) {
	p.publish(ctx, e)
}

func (p *publisher) OnToolCallStarted(ctx context.Context, e events.ToolCallStarted) {
	p.publish(ctx, e)
}

func (p *publisher) OnToolCallUpdated(ctx context.Context, e events.ToolCallUpdated) {
	p.publish(ctx, e)
}

func (p *publisher) OnToolCallCompleted(ctx context.Context, e events.ToolCallCompleted) {
	p.publish(ctx, e)
}

func (p *publisher) OnPartialObject(ctx context.Context, e events.PartialObject) {
	p.publish(ctx, e)
}

func (p *publisher) OnRecoveryAttempt(ctx context.Context, e events.RecoveryAttempt) {
	p.publish(ctx, e)
}

func (p *publisher) OnRecoveryLimitReached(ctx context.Context, e events.RecoveryLimitReached) {
	p.publish(ctx, e)
}

func (p *publisher) OnFinalObject(ctx context.Context, e events.FinalObject) {
	p.publish(ctx, e)
}

func (p *publisher) OnError(ctx context.Context, e events.Error) {
	p.publish(ctx, e)
}
