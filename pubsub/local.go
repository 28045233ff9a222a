package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/pkg/uuidx"
)

const (
	defaultSlowSubscriberTimeout = 100 * time.Millisecond
	subscriptionBuffer           = 50
)

// ErrHookRequired is returned when subscribing without a hook.
var ErrHookRequired = errors.New("hook is required")

type localBroker struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

// Local creates an in-process broker.
func Local() *localBroker {
	return &localBroker{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout configures how long a publish waits on a full subscriber
// before the subscriber is dropped. It only affects topics created afterwards.
func (b *localBroker) WithSlowSubscriberTimeout(timeout time.Duration) *localBroker {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *localBroker) Topic(_ context.Context, id string) Topic {
	t, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			ID:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return t
}

type topic struct {
	ID                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

func (t *topic) Publish(ctx context.Context, event events.Event) error {
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		sub.send(ctx, event, t.slowSubscriberTimeout)
		return ctx.Err() == nil
	})
	return ctx.Err()
}

func (t *topic) Subscribe(ctx context.Context, hook events.Hook) (Subscription, error) {
	if hook == nil {
		return nil, ErrHookRequired
	}
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan events.Event, subscriptionBuffer),
		onClose: func() { t.subscriptions.Del(id) },
	}
	t.subscriptions.Set(id, sub)
	go forward(ctx, sub.channel, hook)
	return sub, nil
}

type subscription struct {
	id        string
	ctx       context.Context
	mu        sync.RWMutex
	channel   chan events.Event
	closed    bool
	closeOnce sync.Once
	onClose   func()
}

func (s *subscription) ID() string {
	return s.id
}

// send delivers event unless the subscription is closed, the context is done or the
// subscriber stays full for longer than timeout, in which case it is dropped.
func (s *subscription) send(ctx context.Context, event events.Event, timeout time.Duration) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.channel <- event:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
	case <-s.ctx.Done():
		s.mu.RUnlock()
		s.Unsubscribe()
	case <-timer.C:
		s.mu.RUnlock()
		s.Unsubscribe()
	}
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		close(s.channel)
		s.mu.Unlock()
	})
}

// forward hands received events to the hook until the channel is closed or ctx is done.
func forward(ctx context.Context, ch <-chan events.Event, hook events.Hook) {
	for {
		select {
		case event, ok := <-ch:
			if !ok || ctx.Err() != nil {
				return
			}
			events.Dispatch(ctx, hook, event)
		case <-ctx.Done():
			return
		}
	}
}
