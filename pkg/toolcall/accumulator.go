// Package toolcall merges streamed tool call deltas into discrete tool call records.
package toolcall

import (
	"errors"
	"strings"

	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/casualjim/instruct/provider"
)

// ErrNoToolCall is returned when a tools-mode reply contains no tool call at all.
var ErrNoToolCall = errors.New("no tool call found")

// Kind describes what happened to a tool call.
type Kind int

const (
	Started Kind = iota
	Updated
	Completed
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Updated:
		return "updated"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Change is emitted by the Accumulator for every transition of a tool call.
// Partial holds the best-effort JSON parse of the arguments for Updated changes.
type Change struct {
	Kind    Kind
	Call    provider.ToolCall
	Partial string
}

// Call is an accumulating tool call record.
type Call struct {
	ID   string
	Name string
	args strings.Builder
	done bool
}

// Arguments returns the raw argument buffer.
func (c *Call) Arguments() string {
	return c.args.String()
}

// Done reports whether the call was finalized.
func (c *Call) Done() bool {
	return c.done
}

// ToolCall returns an immutable snapshot of the record.
func (c *Call) ToolCall() provider.ToolCall {
	return provider.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.args.String()}
}

// Calls keeps tool call records in arrival order.
type Calls struct {
	items []*Call
}

// Last returns the most recent record, or nil.
func (c *Calls) Last() *Call {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[len(c.items)-1]
}

// Start appends a new open record.
func (c *Calls) Start(id, name string) *Call {
	call := &Call{ID: id, Name: name}
	c.items = append(c.items, call)
	return call
}

// FinalizeLast closes the most recent record. It reports false when there is no open record.
func (c *Calls) FinalizeLast() (*Call, bool) {
	last := c.Last()
	if last == nil || last.done {
		return nil, false
	}
	last.done = true
	return last, true
}

// ToolCalls returns snapshots of all records in arrival order.
func (c *Calls) ToolCalls() []provider.ToolCall {
	result := make([]provider.ToolCall, len(c.items))
	for i, call := range c.items {
		result[i] = call.ToolCall()
	}
	return result
}

// Accumulator turns a sequence of fragments into tool call records and transitions.
// It is not safe for concurrent use.
type Accumulator struct {
	calls Calls
}

// Observe applies one fragment and returns the resulting transitions in order.
func (a *Accumulator) Observe(frag provider.PartialInferenceResponse) []Change {
	if !frag.HasToolDelta() {
		return nil
	}

	var changes []Change
	current := a.calls.Last()
	if current != nil && current.done {
		current = nil
	}

	if current != nil && provider.StartsNewToolCall(current.ToolCall(), frag) {
		if done, ok := a.calls.FinalizeLast(); ok {
			changes = append(changes, Change{Kind: Completed, Call: done.ToolCall()})
		}
		current = nil
	}

	if current == nil {
		current = a.calls.Start(frag.ToolID, frag.ToolName)
		changes = append(changes, Change{Kind: Started, Call: current.ToolCall()})
	} else {
		if current.ID == "" {
			current.ID = frag.ToolID
		}
		current.Name += frag.ToolName
	}

	if frag.ToolArgs != "" {
		current.args.WriteString(frag.ToolArgs)
		partial, _ := jsonx.ExtractPartial(current.Arguments())
		changes = append(changes, Change{Kind: Updated, Call: current.ToolCall(), Partial: partial})
	}
	return changes
}

// Finish finalizes the call that is still open at the end of the stream.
func (a *Accumulator) Finish() []Change {
	if done, ok := a.calls.FinalizeLast(); ok {
		return []Change{{Kind: Completed, Call: done.ToolCall()}}
	}
	return nil
}

// Calls returns snapshots of every record seen so far.
func (a *Accumulator) Calls() []provider.ToolCall {
	return a.calls.ToolCalls()
}

// Reset drops every record, it is used when a new attempt starts.
func (a *Accumulator) Reset() {
	a.calls = Calls{}
}
