package instruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/internal/shorttermmemory"
	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/casualjim/instruct/pkg/slogx"
	"github.com/casualjim/instruct/pkg/stdx"
	"github.com/casualjim/instruct/pkg/toolcall"
	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/response"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Update is the result of advancing an execution by one fragment.
// Emitted is true when the fragment produced a new, distinct value; Value holds it.
type Update[T any] struct {
	Attempt  int
	Index    int
	Fragment provider.PartialInferenceResponse
	Value    T
	Emitted  bool
}

type outcome[T any] struct {
	value T
	err   error
}

// Execution is one logical extraction call. It owns the conversation, the attempt counter
// and the cursor of the attempt in progress.
//
// Next and Partials advance the execution one fragment at a time, Get runs it to the end.
// Hooks are called synchronously while the execution is advanced and must not call back
// into it.
type Execution[T any] struct {
	x      *Extractor[T]
	id     uuid.UUID
	thread *shorttermmemory.Aggregator

	mu         sync.Mutex
	result     atomic.Pointer[outcome[T]]
	state      RecoveryState
	attempts   int
	cur        *attempt
	text       jsonx.Assembler
	tools      toolcall.Accumulator
	detector   response.ChangeDetector
	errs       []error
	responses  []*provider.InferenceResponse
	recoveries []RecoveryAttempt
	value      T
	succeeded  bool
	failed     error
	closed     bool
}

type attempt struct {
	number    int
	span      trace.Span
	stream    provider.Stream
	index     int
	usage     provider.Usage
	finish    string
	candidate string
}

func (e *Execution[T]) ID() uuid.UUID {
	return e.id
}

// Attempts returns the number of attempts started so far.
func (e *Execution[T]) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

func (e *Execution[T]) State() RecoveryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Usage returns the token usage summed over all finished attempts.
func (e *Execution[T]) Usage() provider.Usage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thread.Usage()
}

// Errors returns the validation failure of every failed attempt, in order.
func (e *Execution[T]) Errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.errs)
}

// Responses returns the collected reply of every finished attempt, in order.
func (e *Execution[T]) Responses() []*provider.InferenceResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.responses)
}

// Recoveries returns the resubmissions made so far.
func (e *Execution[T]) Recoveries() []RecoveryAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.recoveries)
}

// Messages returns the conversation, including the feedback added by the recovery loop.
func (e *Execution[T]) Messages() []provider.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thread.Messages()
}

// Next advances the execution by exactly one fragment. In non streamed mode one call runs
// one complete attempt. It returns io.EOF once the execution produced its value, and the
// terminal error once it failed.
//
// When the attempt that just finished failed validation and a retry is left, the next call
// resubmits the conversation and returns the first fragment of the new attempt.
func (e *Execution[T]) Next(ctx context.Context) (Update[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next(ctx)
}

// Partials yields every distinct partial value. Stopping the iteration early is not an
// error, the execution stays open and Get resumes from the next fragment.
func (e *Execution[T]) Partials(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			u, err := e.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(stdx.Zero[T](), err)
				return
			}
			if u.Emitted && !yield(u.Value, nil) {
				return
			}
		}
	}
}

// Get runs the execution to completion and returns the final value. The outcome is cached,
// later calls return it without contacting the provider again.
func (e *Execution[T]) Get(ctx context.Context) (T, error) {
	if res := e.result.Load(); res != nil {
		return res.value, res.err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if res := e.result.Load(); res != nil {
		return res.value, res.err
	}

	for {
		_, err := e.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.result.Store(&outcome[T]{err: err})
			return stdx.Zero[T](), err
		}
	}

	e.result.Store(&outcome[T]{value: e.value})
	e.x.hook.OnFinalObject(ctx, events.FinalObject{Header: e.header(e.attempts), Object: e.value})
	return e.value, nil
}

// Close releases the stream of the attempt in progress. An execution closed before it
// produced a value fails with ErrClosed.
func (e *Execution[T]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if a := e.cur; a != nil {
		e.cur = nil
		if a.stream != nil {
			err = a.stream.Close()
		}
		a.span.SetStatus(codes.Error, ErrClosed.Error())
		a.span.End()
	}
	if !e.succeeded && e.failed == nil {
		e.state = StateFailed
	}
	return err
}

func (e *Execution[T]) next(ctx context.Context) (Update[T], error) {
	for {
		switch {
		case e.succeeded:
			return Update[T]{}, io.EOF
		case e.failed != nil:
			return Update[T]{}, e.failed
		case e.closed:
			return Update[T]{}, ErrClosed
		}

		if e.cur == nil {
			if err := e.startAttempt(ctx); err != nil {
				return Update[T]{}, err
			}
		}

		if !e.x.config.Stream {
			return e.completeAttempt(ctx)
		}

		u, finished, err := e.pull(ctx)
		if err != nil {
			return Update[T]{}, err
		}
		if finished {
			continue
		}
		return u, nil
	}
}

func (e *Execution[T]) header(attempt int) events.Header {
	return events.NewHeader(e.id, attempt, e.x.sender)
}

func (e *Execution[T]) request(attempt int) provider.Request {
	cfg := e.x.config
	req := provider.Request{
		RunID:           e.id,
		Attempt:         attempt,
		Messages:        e.thread.Messages(),
		Mode:            cfg.Mode,
		ToolName:        e.x.model.Name(),
		ToolDescription: e.x.model.Description(),
		Model:           cfg.Model,
		Stream:          cfg.Stream,
		Options:         maps.Clone(cfg.Options),
		Retry: provider.RetryPolicy{
			MaxRetries:   cfg.Transport.MaxRetries,
			InitialDelay: cfg.Transport.InitialDelay,
		},
	}
	if e.x.model.Schema() != nil {
		req.Schema = e.x.model.StructuredOutput()
	}
	return req
}

func (e *Execution[T]) startAttempt(ctx context.Context) error {
	e.attempts++
	e.state = StateExtracting
	n := e.attempts

	spanCtx, span := e.x.tracer.Start(ctx, "instruct.attempt", trace.WithAttributes(
		attribute.String("instruct.run_id", e.id.String()),
		attribute.Int("instruct.attempt", n),
		attribute.String("instruct.mode", e.x.config.Mode.String()),
		attribute.Bool("instruct.stream", e.x.config.Stream),
		attribute.String("instruct.target", e.x.model.Name()),
	))
	a := &attempt{number: n, span: span}
	e.cur = a
	e.text.Reset()
	e.text.Shape = e.x.model.Shape()
	e.tools.Reset()
	e.detector.Reset()

	if !e.x.config.Stream {
		return nil
	}

	stream, err := e.x.provider.Stream(spanCtx, e.request(n))
	if err != nil {
		return e.fail(ctx, e.transportError(ctx, n, err))
	}
	a.stream = stream
	return nil
}

func (e *Execution[T]) completeAttempt(ctx context.Context) (Update[T], error) {
	a := e.cur
	resp, err := e.x.provider.Complete(trace.ContextWithSpan(ctx, a.span), e.request(a.number))
	if err != nil {
		return Update[T]{}, e.fail(ctx, e.transportError(ctx, a.number, err))
	}

	hdr := e.header(a.number)
	frag := provider.PartialInferenceResponse{
		ContentDelta: resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}
	e.x.hook.OnFragmentReceived(ctx, events.FragmentReceived{Header: hdr, Fragment: frag})
	for _, tc := range resp.ToolCalls {
		e.x.hook.OnToolCallStarted(ctx, events.ToolCallStarted{Header: hdr, Call: tc})
		e.x.hook.OnToolCallCompleted(ctx, events.ToolCallCompleted{Header: hdr, Call: tc})
	}

	e.cur = nil
	e.settle(ctx, a, resp)

	u := Update[T]{Attempt: a.number, Fragment: frag}
	if e.succeeded {
		u.Value, u.Emitted = e.value, true
	}
	return u, nil
}

// pull reads one fragment from the attempt's stream. finished is true when the stream
// ended without a terminal fragment and the attempt was settled instead.
func (e *Execution[T]) pull(ctx context.Context) (Update[T], bool, error) {
	a := e.cur
	frag, err := a.stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		e.finishAttempt(ctx)
		return Update[T]{}, true, nil
	}
	if err != nil {
		return Update[T]{}, false, e.fail(ctx, e.transportError(ctx, a.number, err))
	}

	u := e.observe(ctx, a, frag)
	if frag.IsTerminal() {
		e.finishAttempt(ctx)
	}
	return u, false, nil
}

func (e *Execution[T]) observe(ctx context.Context, a *attempt, frag provider.PartialInferenceResponse) Update[T] {
	idx := a.index
	a.index++
	hdr := e.header(a.number)
	e.x.hook.OnFragmentReceived(ctx, events.FragmentReceived{Header: hdr, Index: idx, Fragment: frag})

	if !frag.Usage.IsZero() {
		a.usage = frag.Usage
	}
	if frag.FinishReason != "" {
		a.finish = frag.FinishReason
	}
	if frag.ContentDelta != "" {
		e.text.Write(frag.ContentDelta)
	}
	for _, change := range e.tools.Observe(frag) {
		e.toolEvent(ctx, hdr, change)
	}

	u := Update[T]{Attempt: a.number, Index: idx, Fragment: frag}

	candidate, complete := e.candidate()
	if candidate == "" || candidate == a.candidate {
		return u
	}
	a.candidate = candidate
	e.x.hook.OnJSONExtracted(ctx, events.JSONExtracted{Header: hdr, JSON: candidate, Complete: complete})

	value, err := e.partialValue(ctx, candidate, complete)
	if err != nil {
		e.x.logger.DebugContext(ctx, "dropping partial candidate",
			slogx.RunID(e.id),
			slogx.Attempt(a.number),
			slogx.Error(err),
		)
		return u
	}

	changed, hash, err := e.detector.Changed(value)
	if err != nil {
		e.x.logger.DebugContext(ctx, "failed to hash partial value", slogx.RunID(e.id), slogx.Error(err))
		return u
	}
	if !changed {
		return u
	}

	u.Value, u.Emitted = value, true
	e.x.hook.OnPartialObject(ctx, events.PartialObject{Header: hdr, Object: value, Hash: hash})
	return u
}

// candidate returns the best effort document assembled so far. In tools mode the
// arguments of the target's tool call win over plain text.
func (e *Execution[T]) candidate() (string, bool) {
	if e.x.model.Kind() == response.KindString {
		if e.x.config.Mode == provider.ModeTools {
			if args, ok := e.toolArguments(e.tools.Calls()); ok {
				return args, false
			}
		}
		return e.text.Buffer(), false
	}
	if e.x.config.Mode == provider.ModeTools {
		if args, ok := e.toolArguments(e.tools.Calls()); ok {
			return jsonx.ExtractPartialShape(args, e.x.model.Shape())
		}
	}
	return e.text.Extract()
}

func (e *Execution[T]) toolArguments(calls []provider.ToolCall) (string, bool) {
	resp := provider.InferenceResponse{ToolCalls: calls}
	if tc, ok := resp.ToolCall(e.x.model.Name()); ok {
		return tc.Arguments, true
	}
	if tc, ok := resp.ToolCall(""); ok {
		return tc.Arguments, true
	}
	return "", false
}

func (e *Execution[T]) partialValue(ctx context.Context, candidate string, complete bool) (T, error) {
	var zero T
	if e.x.model.Kind() != response.KindString {
		if err := e.x.partial.Check(candidate, complete); err != nil {
			return zero, err
		}
	}
	value, err := e.x.decoder.Decode(candidate, true)
	if err != nil {
		return zero, err
	}
	return e.x.transformers.Apply(ctx, value)
}

func (e *Execution[T]) toolEvent(ctx context.Context, hdr events.Header, change toolcall.Change) {
	switch change.Kind {
	case toolcall.Started:
		e.x.hook.OnToolCallStarted(ctx, events.ToolCallStarted{Header: hdr, Call: change.Call})
	case toolcall.Updated:
		e.x.hook.OnToolCallUpdated(ctx, events.ToolCallUpdated{Header: hdr, Call: change.Call, Partial: change.Partial})
	case toolcall.Completed:
		e.x.hook.OnToolCallCompleted(ctx, events.ToolCallCompleted{Header: hdr, Call: change.Call})
	}
}

func (e *Execution[T]) finishAttempt(ctx context.Context) {
	a := e.cur
	e.cur = nil

	hdr := e.header(a.number)
	for _, change := range e.tools.Finish() {
		e.toolEvent(ctx, hdr, change)
	}
	if err := a.stream.Close(); err != nil {
		e.x.logger.DebugContext(ctx, "failed to close stream", slogx.RunID(e.id), slogx.Error(err))
	}

	e.settle(ctx, a, &provider.InferenceResponse{
		Content:      e.text.Buffer(),
		ToolCalls:    e.tools.Calls(),
		FinishReason: a.finish,
		Usage:        a.usage,
	})
}

// settle validates the reply of a finished attempt and moves the recovery loop forward.
func (e *Execution[T]) settle(ctx context.Context, a *attempt, resp *provider.InferenceResponse) {
	e.responses = append(e.responses, resp)
	e.thread.AddUsage(&resp.Usage)
	e.state = StateValidating

	value, output, err := e.evaluate(ctx, resp)
	if err == nil {
		e.value, e.succeeded = value, true
		e.state = StateSucceeded
		a.span.SetStatus(codes.Ok, "")
		a.span.End()
		return
	}

	e.errs = append(e.errs, err)
	a.span.RecordError(err)
	a.span.SetStatus(codes.Error, "validation failed")
	a.span.End()

	cfg := e.x.config
	if e.attempts <= cfg.MaxRetries {
		e.state = StateRetrying
		fb := feedback(cfg, output, err)
		e.thread.Add(fb...)
		next := e.attempts + 1
		e.recoveries = append(e.recoveries, RecoveryAttempt{Attempt: next, Err: err, Feedback: fb})

		e.x.logger.InfoContext(ctx, "retrying after validation failure",
			slogx.RunID(e.id),
			slogx.Attempt(next),
			slogx.Error(err),
		)
		e.x.hook.OnRecoveryAttempt(ctx, events.RecoveryAttempt{Header: e.header(next), Err: err, Feedback: fb})
		return
	}

	e.state = StateExhausted
	e.failed = &RecoveryExhaustedError{Attempts: e.attempts, Err: err}
	e.x.logger.WarnContext(ctx, "recovery exhausted",
		slogx.RunID(e.id),
		slog.Int("attempts", e.attempts),
		slogx.Error(err),
	)
	e.x.hook.OnRecoveryLimitReached(ctx, events.RecoveryLimitReached{
		Header:   e.header(e.attempts),
		Attempts: e.attempts,
		Err:      err,
	})
}

// evaluate runs the full tier on a complete reply. It also returns the output the value was
// read from, so a failure can be echoed back to the model.
func (e *Execution[T]) evaluate(ctx context.Context, resp *provider.InferenceResponse) (T, string, error) {
	var zero T

	output, err := e.output(resp)
	if err != nil {
		return zero, output, err
	}

	data := output
	if e.x.model.Kind() != response.KindString {
		if strings.TrimSpace(output) == "" {
			return zero, output, response.ErrEmptyContent
		}
		data, err = jsonx.ExtractShape(output, e.x.model.Shape())
		if err != nil {
			return zero, output, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	value, err := e.x.decoder.Decode(data, false)
	if err != nil {
		return zero, output, err
	}
	value, err = e.x.transformers.Apply(ctx, value)
	if err != nil {
		return zero, output, err
	}
	if res := e.x.validator.Validate(ctx, value); !res.Valid() {
		return zero, output, res.Err()
	}
	return value, output, nil
}

func (e *Execution[T]) output(resp *provider.InferenceResponse) (string, error) {
	if args, ok := e.toolArguments(resp.ToolCalls); ok {
		return args, nil
	}
	if resp.HasContent() {
		return resp.Content, nil
	}
	if e.x.config.Mode == provider.ModeTools {
		return "", toolcall.ErrNoToolCall
	}
	return resp.Content, response.ErrEmptyContent
}

func (e *Execution[T]) transportError(ctx context.Context, attempt int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &TransportError{Attempt: attempt, Err: err}
}

// fail ends the execution with a non retryable error.
func (e *Execution[T]) fail(ctx context.Context, err error) error {
	if a := e.cur; a != nil {
		e.cur = nil
		if a.stream != nil {
			if cerr := a.stream.Close(); cerr != nil {
				e.x.logger.DebugContext(ctx, "failed to close stream", slogx.RunID(e.id), slogx.Error(cerr))
			}
		}
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, err.Error())
		a.span.End()
	}

	e.state = StateFailed
	e.failed = err
	e.x.logger.ErrorContext(ctx, "execution failed", slogx.RunID(e.id), slogx.Attempt(e.attempts), slogx.Error(err))
	e.x.hook.OnError(ctx, events.Error{Header: e.header(e.attempts), Err: err})
	return err
}
