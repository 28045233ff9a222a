package provider

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Stream is a pull-based cursor over the fragments of one streamed reply.
//
// Next blocks until the next fragment is available and returns io.EOF once the
// reply is exhausted. Implementations must not fetch a fragment before Next asks
// for it. Close releases the underlying transport and is safe to call more than once.
type Stream interface {
	Next(context.Context) (PartialInferenceResponse, error)
	Close() error
}

// StreamState describes where a cursor is in its lifecycle.
type StreamState int

const (
	StateNew StreamState = iota
	StateStreaming
	StateComplete
	StateError
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Collect drains a stream into a complete response and closes it.
// Tool call fragments are merged in arrival order following StartsNewToolCall.
func Collect(ctx context.Context, s Stream) (*InferenceResponse, error) {
	defer s.Close()

	var (
		content strings.Builder
		resp    InferenceResponse
		current *ToolCall
	)
	flush := func() {
		if current == nil {
			return
		}
		resp.ToolCalls = append(resp.ToolCalls, *current)
		current = nil
	}

	for {
		frag, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		content.WriteString(frag.ContentDelta)
		if frag.HasToolDelta() {
			if current != nil && StartsNewToolCall(*current, frag) {
				flush()
			}
			if current == nil {
				current = &ToolCall{ID: frag.ToolID}
			}
			if current.ID == "" {
				current.ID = frag.ToolID
			}
			current.Name += frag.ToolName
			current.Arguments += frag.ToolArgs
		}
		if frag.FinishReason != "" {
			resp.FinishReason = frag.FinishReason
		}
		if !frag.Usage.IsZero() {
			resp.Usage = frag.Usage
		}
	}
	flush()
	resp.Content = content.String()
	return &resp, nil
}
