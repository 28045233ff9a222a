package instruct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/internal/shorttermmemory"
	"github.com/casualjim/instruct/pkg/slogx"
	"github.com/casualjim/instruct/pkg/stdx"
	"github.com/casualjim/instruct/pkg/uuidx"
	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/response"
	"github.com/fogfish/opts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/casualjim/instruct"

// Extractor turns conversations into validated values of type T. It is immutable after
// New and safe for concurrent use, every call to Create returns an independent Execution.
type Extractor[T any] struct {
	provider     provider.Provider
	model        *response.Model[T]
	config       Config
	hook         events.Hook
	logger       *slog.Logger
	tracer       trace.Tracer
	sender       string
	prompt       string
	decoder      *response.Deserializer[T]
	validator    *response.Validator[T]
	partial      *response.PartialValidator
	transformers response.Transformers[T]
}

// MustNew is New for package level extractors, it panics when the options are invalid.
func MustNew[T any](p provider.Provider, options ...opts.Option[Options]) *Extractor[T] {
	return stdx.Must(New[T](p, options...))
}

// New creates an extractor for T on top of the given provider.
//
// Targets without a schema (strings, gjson.Result, maps and any) cannot be requested in
// tools or json_schema mode, for those the mode falls back to text for strings and json
// for everything else.
func New[T any](p provider.Provider, options ...opts.Option[Options]) (*Extractor[T], error) {
	if p == nil {
		return nil, errors.New("provider is required")
	}

	o := Options{config: DefaultConfig()}
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}

	model, err := response.ModelFor[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to build response model: %w", err)
	}
	model = model.Named(o.config.ToolName, o.config.ToolDescription)

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slogx.LoggerName("instruct"))

	cfg := o.config.clone()
	if model.Schema() == nil && (cfg.Mode == provider.ModeTools || cfg.Mode == provider.ModeJSONSchema) {
		fallback := provider.ModeJSON
		if model.Kind() == response.KindString {
			fallback = provider.ModeText
		}
		logger.Debug("target has no schema, switching mode",
			slog.String("target", model.Name()),
			slogx.Stringer("from", cfg.Mode),
			slogx.Stringer("to", fallback),
		)
		cfg.Mode = fallback
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transformers := make(response.Transformers[T], 0, len(o.transformers))
	for i, t := range o.transformers {
		fn, ok := t.(response.Transformer[T])
		if !ok {
			return nil, fmt.Errorf("transformer %d has type %T, expected a transformer of %s", i, t, model.Type())
		}
		transformers = append(transformers, fn)
	}

	schema, err := model.SchemaJSON()
	if err != nil {
		return nil, err
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	var hook events.Hook = events.NopHook{}
	if len(o.hooks) > 0 {
		hook = events.Compose(o.hooks...)
	}

	return &Extractor[T]{
		provider:     p,
		model:        model,
		config:       cfg,
		hook:         hook,
		logger:       logger,
		tracer:       tracer,
		sender:       o.sender,
		prompt:       cfg.Prompt(schema),
		decoder:      response.NewDeserializer(model, cfg.StrictFields),
		validator:    response.NewValidator(model, nil),
		partial:      response.NewPartialValidator(model, cfg.PreventSchemaEcho, cfg.MatchPartialKeys),
		transformers: transformers,
	}, nil
}

// Config returns a copy of the effective configuration.
func (x *Extractor[T]) Config() Config {
	return x.config.clone()
}

// Model returns the response model of the target type.
func (x *Extractor[T]) Model() *response.Model[T] {
	return x.model
}

// Create starts an execution for the given conversation. Nothing is sent to the provider
// until the execution is advanced.
func (x *Extractor[T]) Create(msgs ...provider.Message) *Execution[T] {
	thread := shorttermmemory.New(msgs...)
	if x.prompt != "" {
		thread.Prepend(provider.System(x.prompt))
	}
	return &Execution[T]{
		x:      x,
		id:     uuidx.New(),
		thread: thread,
	}
}

// Extract runs an execution to completion and returns its final value.
func (x *Extractor[T]) Extract(ctx context.Context, msgs ...provider.Message) (T, error) {
	exec := x.Create(msgs...)
	defer exec.Close()
	return exec.Get(ctx)
}
