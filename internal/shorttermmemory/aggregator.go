package shorttermmemory

import (
	"iter"
	"slices"

	"github.com/casualjim/instruct/pkg/uuidx"
	"github.com/casualjim/instruct/provider"
	"github.com/google/uuid"
)

// Messages is an ordered conversation.
type Messages []provider.Message

// Len returns the number of messages in the collection.
func (m Messages) Len() int {
	return len(m)
}

// New creates an aggregator seeded with the given messages.
//
// Example:
//
//	agg := New(provider.System("be terse"), provider.User("extract the user"))
func New(msgs ...provider.Message) *Aggregator {
	return &Aggregator{
		id:       uuidx.New(),
		messages: slices.Clone(Messages(msgs)),
	}
}

// Aggregator holds the conversation sent to the provider and the usage it accrued.
// A retry forks the aggregator, adds the failed reply and the feedback to the fork and
// joins it back, so the fork's TurnLen is the size of the feedback block.
type Aggregator struct {
	id       uuid.UUID      // Unique identifier for this aggregator
	messages Messages       // Conversation in send order
	initLen  int            // Length at fork time, used for joining
	usage    provider.Usage // Token usage across every attempt
}

// ID returns the unique identifier of this aggregator.
// This ID is generated when the aggregator is created or forked.
func (a *Aggregator) ID() uuid.UUID {
	return a.id
}

// Len returns the total number of messages currently held by the aggregator.
func (a *Aggregator) Len() int {
	return a.messages.Len()
}

// TurnLen returns the number of messages added to the aggregator since it was forked.
func (a *Aggregator) TurnLen() int {
	return len(a.messages) - a.initLen
}

// Messages returns a copy of all messages in the aggregator.
func (a *Aggregator) Messages() Messages {
	return slices.Clone(a.messages)
}

// TurnMessages returns a copy of the messages added since the fork.
func (a *Aggregator) TurnMessages() Messages {
	return slices.Clone(a.messages[a.initLen:])
}

// MessagesIter returns an iterator over all messages in the aggregator.
func (a *Aggregator) MessagesIter() iter.Seq[provider.Message] {
	return slices.Values(a.messages)
}

// Add appends messages in order.
func (a *Aggregator) Add(msgs ...provider.Message) {
	a.messages = append(a.messages, msgs...)
}

// Prepend inserts messages before the current conversation. It is used to install the
// mode instructions ahead of the caller's messages.
func (a *Aggregator) Prepend(msgs ...provider.Message) {
	a.messages = append(slices.Clone(Messages(msgs)), a.messages...)
}

// Usage returns the accumulated usage statistics.
func (a *Aggregator) Usage() provider.Usage {
	return a.usage
}

// AddUsage adds u to the accumulated usage. A nil u is ignored.
func (a *Aggregator) AddUsage(u *provider.Usage) {
	a.usage.AddUsage(u)
}

// Fork creates a new aggregator that starts with a copy of the current messages.
// The new aggregator gets a new id and starts with zero usage.
func (a *Aggregator) Fork() *Aggregator {
	return &Aggregator{
		id:       uuidx.New(),
		messages: slices.Clone(a.messages),
		initLen:  a.Len(),
	}
}

// Join appends the messages b received after it was forked and adds its usage.
//
// Example:
//
//	original := New(m1, m2)
//	forked := original.Fork()  // [m1, m2], initLen=2
//	original.Add(m3)           // [m1, m2, m3]
//	forked.Add(m4)             // [m1, m2, m4]
//	original.Join(forked)      // [m1, m2, m3, m4]
func (a *Aggregator) Join(b *Aggregator) {
	a.messages = append(a.messages, b.messages[b.initLen:]...)
	a.usage.AddUsage(&b.usage)
}
