package instruct

import (
	"log/slog"
	"maps"

	"github.com/casualjim/instruct/events"
	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/response"
	"github.com/fogfish/opts"
	"go.opentelemetry.io/otel/trace"
)

// Options collects the settings applied by New.
type Options struct {
	config       Config
	hooks        []events.Hook
	logger       *slog.Logger
	tracer       trace.Tracer
	sender       string
	transformers []any
}

var (
	// WithLogger sets the logger used by the extractor and its executions.
	WithLogger = opts.ForName[Options, *slog.Logger]("logger")

	// WithSender sets the sender recorded on every event.
	WithSender = opts.ForName[Options, string]("sender")
)

// WithConfig replaces the whole configuration. Options applied after it adjust the copy.
func WithConfig(cfg Config) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config = cfg.clone()
		return nil
	})
}

// WithHook registers a hook. Hooks are called in registration order.
func WithHook(hook events.Hook) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
		return nil
	})
}

// WithTracer sets the tracer used to open one span per attempt.
func WithTracer(tracer trace.Tracer) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.tracer = tracer
		return nil
	})
}

func WithMaxRetries(n int) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.MaxRetries = n
		return nil
	})
}

func WithMode(mode provider.OutputMode) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.Mode = mode
		return nil
	})
}

// Streaming asks the provider for a stream of fragments instead of a single response.
func Streaming(stream bool) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.Stream = stream
		return nil
	})
}

func WithModel(model string) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.Model = model
		return nil
	})
}

// WithTool names the target in schemas and tool definitions.
func WithTool(name, description string) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.ToolName = name
		o.config.ToolDescription = description
		return nil
	})
}

// WithProviderOptions merges provider specific knobs such as temperature.
func WithProviderOptions(options map[string]any) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		if o.config.Options == nil {
			o.config.Options = make(map[string]any, len(options))
		}
		maps.Copy(o.config.Options, options)
		return nil
	})
}

// StrictFields rejects unknown fields in complete responses.
func StrictFields(strict bool) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		o.config.StrictFields = strict
		return nil
	})
}

// WithTransform appends a transformer. Transformers run in registration order after every
// successful decode. New fails when T does not match the extractor's target type.
func WithTransform[T any](fn response.Transformer[T]) opts.Option[Options] {
	return opts.Type[Options](func(o *Options) error {
		if fn != nil {
			o.transformers = append(o.transformers, fn)
		}
		return nil
	})
}
