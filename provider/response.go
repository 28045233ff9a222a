package provider

import "strings"

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// InferenceResponse is a complete model reply.
type InferenceResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        Usage      `json:"usage"`
}

// HasToolCalls reports whether the reply contains at least one tool call.
func (r *InferenceResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// HasContent reports whether the reply carries non-blank text.
func (r *InferenceResponse) HasContent() bool {
	return r != nil && strings.TrimSpace(r.Content) != ""
}

// ToolCall returns the first call with the given name. An empty name matches the
// first call of the reply.
func (r *InferenceResponse) ToolCall(name string) (ToolCall, bool) {
	if r == nil {
		return ToolCall{}, false
	}
	for _, tc := range r.ToolCalls {
		if name == "" || tc.Name == name {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// PartialInferenceResponse is one increment of a streamed reply.
// FinishReason is only present on the terminal fragment and Usage holds the usage so far.
type PartialInferenceResponse struct {
	ContentDelta string `json:"content_delta,omitempty"`
	ToolID       string `json:"tool_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	ToolArgs     string `json:"tool_args,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// IsTerminal reports whether this fragment ends the stream.
func (p PartialInferenceResponse) IsTerminal() bool {
	return p.FinishReason != ""
}

// HasToolDelta reports whether the fragment carries any tool call data.
func (p PartialInferenceResponse) HasToolDelta() bool {
	return p.ToolID != "" || p.ToolName != "" || p.ToolArgs != ""
}

// StartsNewToolCall reports whether frag opens a new tool call rather than extending
// current. That is the case when it carries a different tool id, or a tool name after
// current already received arguments. Every merge of streamed tool deltas follows it.
func StartsNewToolCall(current ToolCall, frag PartialInferenceResponse) bool {
	if frag.ToolID != "" && current.ID != "" && frag.ToolID != current.ID {
		return true
	}
	return frag.ToolName != "" && current.Arguments != ""
}
