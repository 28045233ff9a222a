// Package replay provides a provider that plays back scripted or recorded replies.
// It is used for offline runs, fixtures and tests that need to observe exactly how far
// a stream was consumed.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/instruct/provider"
)

// ErrNoScript is returned when the provider is called more often than it has scripts.
var ErrNoScript = errors.New("replay: no script left")

// Script is the reply to one provider call.
// Err fails the call itself. StreamErr is returned by the stream after the last fragment
// instead of io.EOF. Response answers Complete; when it is nil the fragments are collected.
type Script struct {
	Fragments []provider.PartialInferenceResponse
	Response  *provider.InferenceResponse
	Err       error
	StreamErr error
}

// Text scripts a streamed text reply, one fragment per chunk. The last fragment carries
// the "stop" finish reason.
func Text(chunks ...string) Script {
	frags := make([]provider.PartialInferenceResponse, len(chunks))
	for i, c := range chunks {
		frags[i] = provider.PartialInferenceResponse{ContentDelta: c}
	}
	if len(frags) > 0 {
		frags[len(frags)-1].FinishReason = "stop"
	}
	return Script{Fragments: frags}
}

// ToolCall scripts a reply with a single tool call whose arguments arrive in chunks.
func ToolCall(name string, argChunks ...string) Script {
	frags := []provider.PartialInferenceResponse{{ToolID: "call_" + name, ToolName: name}}
	for _, c := range argChunks {
		frags = append(frags, provider.PartialInferenceResponse{ToolArgs: c})
	}
	frags[len(frags)-1].FinishReason = "tool_calls"
	return Script{Fragments: frags}
}

// Failure scripts a call that fails before any fragment is produced.
func Failure(err error) Script {
	return Script{Err: err}
}

// Provider replays scripts in order, one per call. It is safe for concurrent use.
type Provider struct {
	mu            sync.Mutex
	scripts       []Script
	requests      []provider.Request
	streamCalls   int
	completeCalls int
	last          *Stream
}

// New creates a provider that answers calls with the given scripts in order.
func New(scripts ...Script) *Provider {
	return &Provider{scripts: scripts}
}

func (p *Provider) next(req provider.Request) (Script, error) {
	p.requests = append(p.requests, cloneRequest(req))
	if len(p.scripts) == 0 {
		return Script{}, ErrNoScript
	}
	s := p.scripts[0]
	p.scripts = p.scripts[1:]
	return s, s.Err
}

// Complete returns the scripted response.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.InferenceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.completeCalls++
	script, err := p.next(req)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if script.Response != nil {
		resp := *script.Response
		resp.ToolCalls = slices.Clone(resp.ToolCalls)
		return &resp, nil
	}
	resp, err := provider.Collect(ctx, &Stream{frags: script.Fragments, err: script.StreamErr})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream returns a cursor over the scripted fragments. A script that only has a
// Response is streamed as one content fragment, one fragment per tool call and a
// terminal fragment.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.streamCalls++
	script, err := p.next(req)
	if err != nil {
		return nil, err
	}

	frags := script.Fragments
	if len(frags) == 0 && script.Response != nil {
		frags = fragmentsOf(script.Response)
	}
	s := &Stream{frags: slices.Clone(frags), err: script.StreamErr}
	p.last = s
	return s, nil
}

// Calls returns the total number of provider calls.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCalls + p.completeCalls
}

// StreamCalls returns the number of Stream calls.
func (p *Provider) StreamCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCalls
}

// CompleteCalls returns the number of Complete calls.
func (p *Provider) CompleteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completeCalls
}

// Requests returns copies of every request received, in order.
func (p *Provider) Requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]provider.Request, len(p.requests))
	for i, r := range p.requests {
		result[i] = cloneRequest(r)
	}
	return result
}

// LastStream returns the most recently opened stream, or nil.
func (p *Provider) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Pulled returns how many fragments the most recent stream has yielded.
func (p *Provider) Pulled() int {
	if s := p.LastStream(); s != nil {
		return s.Pulled()
	}
	return 0
}

// Remaining returns how many fragments the most recent stream still holds.
func (p *Provider) Remaining() int {
	if s := p.LastStream(); s != nil {
		return s.Remaining()
	}
	return 0
}

// Stream yields scripted fragments one at a time.
type Stream struct {
	mu     sync.Mutex
	frags  []provider.PartialInferenceResponse
	err    error
	pos    int
	closed bool
	state  provider.StreamState
}

func (s *Stream) Next(ctx context.Context) (provider.PartialInferenceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return provider.PartialInferenceResponse{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.state = provider.StateError
		return provider.PartialInferenceResponse{}, err
	}
	if s.pos >= len(s.frags) {
		if s.err != nil {
			s.state = provider.StateError
			return provider.PartialInferenceResponse{}, s.err
		}
		s.state = provider.StateComplete
		return provider.PartialInferenceResponse{}, io.EOF
	}

	f := s.frags[s.pos]
	s.pos++
	s.state = provider.StateStreaming
	if f.IsTerminal() && s.pos == len(s.frags) && s.err == nil {
		s.state = provider.StateComplete
	}
	return f, nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state = provider.StateClosed
	return nil
}

// Pulled returns the number of fragments yielded so far.
func (s *Stream) Pulled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Remaining returns the number of fragments not yet yielded.
func (s *Stream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frags) - s.pos
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// State reports the lifecycle state of the cursor.
func (s *Stream) State() provider.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func fragmentsOf(resp *provider.InferenceResponse) []provider.PartialInferenceResponse {
	var frags []provider.PartialInferenceResponse
	if resp.Content != "" {
		frags = append(frags, provider.PartialInferenceResponse{ContentDelta: resp.Content})
	}
	for _, tc := range resp.ToolCalls {
		frags = append(frags, provider.PartialInferenceResponse{ToolID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Arguments})
	}
	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
	}
	frags = append(frags, provider.PartialInferenceResponse{FinishReason: finish, Usage: resp.Usage})
	return frags
}

func cloneRequest(r provider.Request) provider.Request {
	r.Messages = slices.Clone(r.Messages)
	return r
}

// String summarizes the remaining scripts, it is handy in test failure output.
func (p *Provider) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	parts := make([]string, 0, len(p.scripts))
	for _, s := range p.scripts {
		parts = append(parts, fmt.Sprintf("%d fragments", len(s.Fragments)))
	}
	return "replay[" + strings.Join(parts, ", ") + "]"
}
