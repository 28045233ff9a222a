package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/casualjim/instruct/pkg/slogx"
	"github.com/casualjim/instruct/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

var _ provider.Provider = (*Provider)(nil)

// Provider adapts the OpenAI chat completions API to provider.Provider.
type Provider struct {
	client       *openai.Client
	defaultModel string
}

// New creates a provider. Requests without a model use gpt-4o-mini.
func New(options ...option.RequestOption) *Provider {
	client := openai.NewClient(options...)
	return &Provider{
		client:       client,
		defaultModel: openai.ChatModelGPT4oMini,
	}
}

func (p *Provider) buildRequest(req provider.Request) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	msgs, err := messagesToOpenAI(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(model),
		N:        openai.Int(1),
	}

	switch req.Mode {
	case provider.ModeJSON:
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		)
	case provider.ModeJSONSchema:
		if req.Schema == nil || req.Schema.Schema == nil {
			return openai.ChatCompletionNewParams{}, nil, errors.New("json_schema mode requires a schema")
		}
		schema, err := jsonx.ToDynamicJSON(req.Schema.Schema)
		if err != nil {
			return openai.ChatCompletionNewParams{}, nil, fmt.Errorf("failed to convert schema: %w", err)
		}
		format := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   openai.String(schemaName(req.Schema.Name)),
			Schema: openai.F[any](schema),
			Strict: openai.Bool(true),
		}
		if strings.TrimSpace(req.Schema.Description) != "" {
			format.Description = openai.String(req.Schema.Description)
		}
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type:       openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(format),
			},
		)
	case provider.ModeTools:
		tool, name, err := toolFor(req)
		if err != nil {
			return openai.ChatCompletionNewParams{}, nil, err
		}
		params.Tools = openai.F([]openai.ChatCompletionToolParam{tool})
		params.ToolChoice = openai.F[openai.ChatCompletionToolChoiceOptionUnionParam](
			openai.ChatCompletionNamedToolChoiceParam{
				Type: openai.F(openai.ChatCompletionNamedToolChoiceTypeFunction),
				Function: openai.F(openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: openai.String(name),
				}),
			},
		)
	}

	if err := applyOptions(&params, req.Options); err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}

	if req.Stream {
		params.StreamOptions = openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		})
	}

	var reqOpts []option.RequestOption
	if req.Retry.MaxRetries > 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(req.Retry.MaxRetries))
	}
	return params, reqOpts, nil
}

func toolFor(req provider.Request) (openai.ChatCompletionToolParam, string, error) {
	if req.Schema == nil || req.Schema.Schema == nil {
		return openai.ChatCompletionToolParam{}, "", errors.New("tools mode requires a schema")
	}
	name := req.ToolName
	if name == "" {
		name = req.Schema.Name
	}
	name = schemaName(name)

	parameters, err := jsonx.ToDynamicJSON(req.Schema.Schema)
	if err != nil {
		return openai.ChatCompletionToolParam{}, "", fmt.Errorf("failed to convert tool parameters: %w", err)
	}

	def := openai.FunctionDefinitionParam{
		Name:       openai.String(name),
		Parameters: openai.F(shared.FunctionParameters(parameters)),
	}
	description := req.ToolDescription
	if description == "" {
		description = req.Schema.Description
	}
	if strings.TrimSpace(description) != "" {
		def.Description = openai.String(description)
	}

	return openai.ChatCompletionToolParam{
		Type:     openai.F(openai.ChatCompletionToolTypeFunction),
		Function: openai.F(def),
	}, name, nil
}

// schemaName keeps the characters OpenAI accepts in function and schema names.
func schemaName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "Response"
	}
	return b.String()
}

func applyOptions(params *openai.ChatCompletionNewParams, opts map[string]any) error {
	for key, value := range opts {
		switch key {
		case "temperature":
			f, err := toFloat(key, value)
			if err != nil {
				return err
			}
			params.Temperature = openai.Float(f)
		case "top_p":
			f, err := toFloat(key, value)
			if err != nil {
				return err
			}
			params.TopP = openai.Float(f)
		case "max_tokens", "max_completion_tokens":
			n, err := toInt(key, value)
			if err != nil {
				return err
			}
			params.MaxCompletionTokens = openai.Int(n)
		case "seed":
			n, err := toInt(key, value)
			if err != nil {
				return err
			}
			params.Seed = openai.Int(n)
		case "user":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("option %s: expected string, got %T", key, value)
			}
			params.User = openai.String(s)
		default:
			slog.Debug("ignoring unsupported option", slogx.LoggerName("openai"), slog.String("option", key))
		}
	}
	return nil
}

func toFloat(key string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("option %s: expected number, got %T", key, value)
	}
}

func toInt(key string, value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("option %s: expected integer, got %T", key, value)
	}
}

func messagesToOpenAI(msgs []provider.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case provider.RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		case provider.RoleUser:
			result = append(result, openai.UserMessage(m.Content))
		case provider.RoleAssistant:
			result = append(result, openai.AssistantMessage(m.Content))
		case provider.RoleTool:
			result = append(result, openai.ToolMessage(m.ToolCallID, m.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return result, nil
}

// Complete sends one chat completion request.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.InferenceResponse, error) {
	params, opts, err := p.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	chat, err := p.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, err
	}
	return completionToResponse(chat), nil
}

// Stream opens a streaming chat completion. Chunks are read from the connection only
// when the returned cursor is advanced.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	req.Stream = true
	params, opts, err := p.buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	strm := p.client.Chat.Completions.NewStreaming(ctx, params, opts...)
	if err := strm.Err(); err != nil {
		strm.Close()
		return nil, err
	}
	return &stream{strm: strm, state: provider.StateNew}, nil
}

type stream struct {
	strm    *ssestream.Stream[openai.ChatCompletionChunk]
	pending []provider.PartialInferenceResponse
	state   provider.StreamState
}

func (s *stream) Next(ctx context.Context) (provider.PartialInferenceResponse, error) {
	for {
		if len(s.pending) > 0 {
			frag := s.pending[0]
			s.pending = s.pending[1:]
			return frag, nil
		}

		switch s.state {
		case provider.StateComplete, provider.StateClosed:
			return provider.PartialInferenceResponse{}, io.EOF
		}

		if err := ctx.Err(); err != nil {
			s.state = provider.StateError
			return provider.PartialInferenceResponse{}, err
		}

		if !s.strm.Next() {
			if err := s.strm.Err(); err != nil {
				s.state = provider.StateError
				return provider.PartialInferenceResponse{}, err
			}
			s.state = provider.StateComplete
			continue
		}
		s.state = provider.StateStreaming

		chunk := s.strm.Current()
		s.pending = chunkToFragments(&chunk)
		if n := len(s.pending); n > 0 && s.pending[n-1].IsTerminal() {
			s.foldTrailingUsage(n - 1)
		}
	}
}

// foldTrailingUsage attaches the usage frame sent after the finish reason to the
// terminal fragment, so the terminal fragment stays the last one of the stream.
func (s *stream) foldTrailingUsage(terminal int) {
	defer func() { s.state = provider.StateComplete }()
	if !s.pending[terminal].Usage.IsZero() || !s.strm.Next() {
		return
	}
	chunk := s.strm.Current()
	if usage := toUsage(chunk.Usage); !usage.IsZero() {
		s.pending[terminal].Usage = usage
	}
}

func (s *stream) Close() error {
	s.state = provider.StateClosed
	s.pending = nil
	return s.strm.Close()
}

func chunkToFragments(chunk *openai.ChatCompletionChunk) []provider.PartialInferenceResponse {
	usage := toUsage(chunk.Usage)
	if len(chunk.Choices) == 0 {
		if usage.IsZero() {
			return nil
		}
		return []provider.PartialInferenceResponse{{Usage: usage}}
	}

	choice := chunk.Choices[0]
	var frags []provider.PartialInferenceResponse
	if choice.Delta.Content != "" {
		frags = append(frags, provider.PartialInferenceResponse{ContentDelta: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		frags = append(frags, provider.PartialInferenceResponse{
			ToolID:   tc.ID,
			ToolName: tc.Function.Name,
			ToolArgs: tc.Function.Arguments,
		})
	}

	finish := string(choice.FinishReason)
	if finish != "" {
		if len(frags) == 0 {
			frags = append(frags, provider.PartialInferenceResponse{})
		}
		frags[len(frags)-1].FinishReason = finish
	}
	if len(frags) > 0 && !usage.IsZero() {
		frags[len(frags)-1].Usage = usage
	}
	return frags
}

func completionToResponse(chat *openai.ChatCompletion) *provider.InferenceResponse {
	resp := &provider.InferenceResponse{Usage: toUsage(chat.Usage)}
	if len(chat.Choices) == 0 {
		return resp
	}

	choice := chat.Choices[0]
	resp.Content = choice.Message.Content
	resp.FinishReason = string(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp
}

func toUsage(u openai.CompletionUsage) provider.Usage {
	return provider.Usage{
		CompletionTokens: u.CompletionTokens,
		PromptTokens:     u.PromptTokens,
		TotalTokens:      u.TotalTokens,
		CompletionTokensDetails: provider.CompletionTokensDetails{
			AcceptedPredictionTokens: u.CompletionTokensDetails.AcceptedPredictionTokens,
			AudioTokens:              u.CompletionTokensDetails.AudioTokens,
			ReasoningTokens:          u.CompletionTokensDetails.ReasoningTokens,
			RejectedPredictionTokens: u.CompletionTokensDetails.RejectedPredictionTokens,
		},
		PromptTokensDetails: provider.PromptTokensDetails{
			AudioTokens:  u.PromptTokensDetails.AudioTokens,
			CachedTokens: u.PromptTokensDetails.CachedTokens,
		},
	}
}
