package events

import (
	"time"

	"github.com/casualjim/instruct/provider"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Event is a pipeline signal. The set of events is closed.
type Event interface {
	// Type is the discriminator used on the wire.
	Type() string
	Meta() Header
	isEvent()
}

// Header carries the context shared by every event.
type Header struct {
	RunID     uuid.UUID
	Attempt   int
	Sender    string
	Timestamp strfmt.DateTime
}

// NewHeader stamps a header with the current time.
func NewHeader(runID uuid.UUID, attempt int, sender string) Header {
	return Header{
		RunID:     runID,
		Attempt:   attempt,
		Sender:    sender,
		Timestamp: strfmt.DateTime(time.Now().UTC()),
	}
}

func (h Header) Meta() Header { return h }

// FragmentReceived fires for every fragment pulled from a provider stream, and once for
// the complete response of a non streamed attempt.
type FragmentReceived struct {
	Header
	Index    int
	Fragment provider.PartialInferenceResponse
}

// JSONExtracted fires when the assembler produced a new JSON candidate.
type JSONExtracted struct {
	Header
	JSON     string
	Complete bool
}

// ToolCallStarted fires when a tool call record is opened.
type ToolCallStarted struct {
	Header
	Call provider.ToolCall
}

// ToolCallUpdated fires when arguments were appended to the open tool call.
// Partial is the best effort JSON of the arguments so far.
type ToolCallUpdated struct {
	Header
	Call    provider.ToolCall
	Partial string
}

// ToolCallCompleted fires when a tool call record is finalized.
type ToolCallCompleted struct {
	Header
	Call provider.ToolCall
}

// PartialObject fires when a new, distinct partial value was produced.
type PartialObject struct {
	Header
	Object any
	Hash   uint64
}

// RecoveryAttempt fires when a failed attempt is resubmitted. Attempt in the header is the
// attempt that is about to start.
type RecoveryAttempt struct {
	Header
	Err      error
	Feedback []provider.Message
}

// RecoveryLimitReached fires once when the retry budget is spent.
type RecoveryLimitReached struct {
	Header
	Attempts int
	Err      error
}

// FinalObject fires when the final value is handed to the caller.
type FinalObject struct {
	Header
	Object any
}

// Error fires for terminal failures.
type Error struct {
	Header
	Err error
}

func (FragmentReceived) Type() string     { return "fragment_received" }
func (JSONExtracted) Type() string        { return "json_extracted" }
func (ToolCallStarted) Type() string      { return "tool_call_started" }
func (ToolCallUpdated) Type() string      { return "tool_call_updated" }
func (ToolCallCompleted) Type() string    { return "tool_call_completed" }
func (PartialObject) Type() string        { return "partial_object" }
func (RecoveryAttempt) Type() string      { return "recovery_attempt" }
func (RecoveryLimitReached) Type() string { return "recovery_limit_reached" }
func (FinalObject) Type() string          { return "final_object" }
func (Error) Type() string                { return "error" }

func (FragmentReceived) isEvent()     {}
func (JSONExtracted) isEvent()        {}
func (ToolCallStarted) isEvent()      {}
func (ToolCallUpdated) isEvent()      {}
func (ToolCallCompleted) isEvent()    {}
func (PartialObject) isEvent()        {}
func (RecoveryAttempt) isEvent()      {}
func (RecoveryLimitReached) isEvent() {}
func (FinalObject) isEvent()          {}
func (Error) isEvent()                {}
