// Package pubsub fans pipeline events out to subscribers through named topics.
//
// Local keeps topics in process and delivers events over buffered channels, a subscriber
// that cannot keep up is dropped. NATS encodes events with events.ToJSON and delivers
// them to subscribers in other processes. Both forward received events to an events.Hook
// with events.Dispatch.
//
// Publisher adapts a topic to an events.Hook, so an extractor can publish every event it
// produces:
//
//	topic := pubsub.Local().Topic(ctx, "extractions")
//	sub, err := topic.Subscribe(ctx, events.LoggingHook(logger))
//	if err != nil {
//		return err
//	}
//	defer sub.Unsubscribe()
//
//	x, err := instruct.New[Person](p, instruct.WithHook(pubsub.Publisher(topic)))
package pubsub
