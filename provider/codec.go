package provider

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	fragmentJSON = []byte(`{"type":"fragment"}`)
	responseJSON = []byte(`{"type":"response"}`)
)

// MarshalJSON implements custom JSON marshaling for PartialInferenceResponse
func (p PartialInferenceResponse) MarshalJSON() ([]byte, error) {
	result := fragmentJSON

	var err error
	for _, field := range []struct {
		path  string
		value string
	}{
		{"content_delta", p.ContentDelta},
		{"tool_id", p.ToolID},
		{"tool_name", p.ToolName},
		{"tool_args", p.ToolArgs},
		{"finish_reason", p.FinishReason},
	} {
		if field.value == "" {
			continue
		}
		result, err = sjson.SetBytes(result, field.path, field.value)
		if err != nil {
			return nil, err
		}
	}

	if !p.Usage.IsZero() {
		usage, err := json.Marshal(p.Usage)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal usage: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "usage", usage)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for PartialInferenceResponse
func (p *PartialInferenceResponse) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "fragment" {
		return fmt.Errorf("missing or invalid type, expected 'fragment'")
	}

	p.ContentDelta = gjson.GetBytes(data, "content_delta").String()
	p.ToolID = gjson.GetBytes(data, "tool_id").String()
	p.ToolName = gjson.GetBytes(data, "tool_name").String()
	p.ToolArgs = gjson.GetBytes(data, "tool_args").String()
	p.FinishReason = gjson.GetBytes(data, "finish_reason").String()

	if usage := gjson.GetBytes(data, "usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &p.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling for InferenceResponse
func (r InferenceResponse) MarshalJSON() ([]byte, error) {
	result := responseJSON

	var err error
	result, err = sjson.SetBytes(result, "content", r.Content)
	if err != nil {
		return nil, err
	}

	if len(r.ToolCalls) > 0 {
		calls, err := json.Marshal(r.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "tool_calls", calls)
		if err != nil {
			return nil, err
		}
	}

	if r.FinishReason != "" {
		result, err = sjson.SetBytes(result, "finish_reason", r.FinishReason)
		if err != nil {
			return nil, err
		}
	}

	usage, err := json.Marshal(r.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	return sjson.SetRawBytes(result, "usage", usage)
}

// UnmarshalJSON implements custom JSON unmarshaling for InferenceResponse
func (r *InferenceResponse) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "response" {
		return fmt.Errorf("missing or invalid type, expected 'response'")
	}

	content := gjson.GetBytes(data, "content")
	if !content.Exists() {
		return fmt.Errorf("missing required field 'content'")
	}
	r.Content = content.String()
	r.FinishReason = gjson.GetBytes(data, "finish_reason").String()

	r.ToolCalls = nil
	if calls := gjson.GetBytes(data, "tool_calls"); calls.Exists() {
		if err := json.Unmarshal([]byte(calls.Raw), &r.ToolCalls); err != nil {
			return fmt.Errorf("invalid tool_calls: %w", err)
		}
	}

	if usage := gjson.GetBytes(data, "usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &r.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}

	return nil
}
