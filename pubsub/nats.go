package pubsub

import (
	"context"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/pkg/slogx"
	"github.com/casualjim/instruct/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

// NATS creates a broker that maps every topic to a NATS subject.
func NATS(client *nats.Conn) *natsBroker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsBroker) Topic(_ context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: id,
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eb, err := events.ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, hook events.Hook) (Subscription, error) {
	if hook == nil {
		return nil, ErrHookRequired
	}
	id := uuidx.NewString()
	ch := make(chan events.Event, subscriptionBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		if subCtx.Err() != nil {
			return
		}
		event, err := events.FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}

		select {
		case ch <- event:
		case <-subCtx.Done():
			return
		}

		if msg.Reply != "" {
			if nerr := msg.Respond(nil); nerr != nil {
				slog.Error("failed to ack message", slogx.Error(nerr))
			}
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}
	nsub.SetClosedHandler(func(string) { cancel() })
	if err := t.client.Flush(); err != nil {
		_ = nsub.Unsubscribe()
		cancel()
		return nil, err
	}

	go forward(subCtx, ch, hook)
	return &natsSubscription{
		id:  id,
		sub: nsub,
	}, nil
}

type natsSubscription struct {
	id  string
	sub *nats.Subscription
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	if err := n.sub.Unsubscribe(); err != nil {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
	}
}
