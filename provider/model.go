package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Provider defines the interface for inference backends (e.g., OpenAI).
// Implementations translate a normalized Request into the provider wire format and
// normalize the reply back into an InferenceResponse or a sequence of
// PartialInferenceResponse fragments.
type Provider interface {
	// Complete issues a non-streamed request and returns the complete reply.
	Complete(context.Context, Request) (*InferenceResponse, error)

	// Stream issues a streamed request. No fragment is fetched before the caller
	// asks for it through Stream.Next.
	Stream(context.Context, Request) (Stream, error)
}

// OutputMode tells the provider how the model should shape its output.
type OutputMode string

const (
	ModeText       OutputMode = "text"
	ModeJSON       OutputMode = "json"
	ModeJSONSchema OutputMode = "json_schema"
	ModeTools      OutputMode = "tools"
	ModeMdJSON     OutputMode = "md_json"
)

// Valid reports whether m is one of the known output modes.
func (m OutputMode) Valid() bool {
	switch m {
	case ModeText, ModeJSON, ModeJSONSchema, ModeTools, ModeMdJSON:
		return true
	default:
		return false
	}
}

func (m OutputMode) String() string {
	return string(m)
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry of the conversation sent to the provider.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Request encapsulates all parameters needed for an inference request.
type Request struct {
	// RunID uniquely identifies the logical extraction call this request belongs to
	RunID uuid.UUID

	// Attempt is the 1-based attempt number of the recovery loop
	Attempt int

	// Messages contains the conversation, including any recovery feedback
	Messages []Message

	// Mode selects how the model is asked to produce structured output
	Mode OutputMode

	// Schema describes the target shape for json_schema and tools modes
	Schema *StructuredOutput

	// ToolName and ToolDescription name the function the model must call in tools mode
	ToolName        string
	ToolDescription string

	// Model is the provider specific model name
	Model string

	// Stream indicates whether the response is requested as a stream of fragments
	Stream bool

	// Options carries provider specific knobs such as temperature or max_tokens
	Options map[string]any

	// Retry is the transport-level retry policy, distinct from the recovery loop
	Retry RetryPolicy

	// Prevents unkeyed literals
	_ struct{}
}

// StructuredOutput defines a schema for formatted responses.
type StructuredOutput struct {
	// Name identifies this output format
	Name string

	// Description explains the purpose and usage of this format
	Description string

	// Schema defines the JSON structure that responses should follow
	Schema *jsonschema.Schema
}

// RetryPolicy configures transport retries performed by the provider client.
// It never covers validation failures, those are handled by the recovery loop.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
}
