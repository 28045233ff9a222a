package instruct

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/response"
	"gopkg.in/yaml.v3"
)

// SchemaPlaceholder is replaced with the target's JSON schema in mode prompts.
const SchemaPlaceholder = "<|json_schema|>"

const (
	DefaultFeedbackMarker  = "FEEDBACK:"
	DefaultCorrectedMarker = "CORRECTED RESPONSE:"
	DefaultRetryPrompt     = "JSON generated incorrectly, fix following errors:"
)

const jsonPrompt = "As a genius expert, your task is to understand the content and provide the parsed objects in json that match the following json_schema:\n\n" +
	SchemaPlaceholder +
	"\n\nMake sure to return an instance of the JSON, not the schema itself"

// Config is the serializable part of an Extractor's configuration.
type Config struct {
	// MaxRetries bounds the recovery loop, an execution makes at most MaxRetries+1 attempts.
	MaxRetries int                 `yaml:"max_retries" validate:"gte=0,lte=50"`
	Mode       provider.OutputMode `yaml:"mode" validate:"required,oneof=text json json_schema tools md_json"`
	Stream     bool                `yaml:"stream"`
	Model      string              `yaml:"model"`

	// ToolName and ToolDescription name the target. They default to the Go type name.
	ToolName        string `yaml:"tool_name"`
	ToolDescription string `yaml:"tool_description"`

	// Prompts holds a system prompt per mode, prepended to the conversation.
	Prompts map[provider.OutputMode]string `yaml:"prompts"`

	RetryPrompt     string `yaml:"retry_prompt" validate:"required"`
	FeedbackMarker  string `yaml:"feedback_marker" validate:"required"`
	CorrectedMarker string `yaml:"corrected_marker" validate:"required"`

	PreventSchemaEcho bool `yaml:"prevent_schema_echo"`
	MatchPartialKeys  bool `yaml:"match_partial_keys"`
	StrictFields      bool `yaml:"strict_fields"`

	Options   map[string]any  `yaml:"options"`
	Transport TransportConfig `yaml:"transport"`
}

// TransportConfig is handed to the provider client, it never retries validation failures.
type TransportConfig struct {
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 1,
		Mode:       provider.ModeTools,
		Prompts: map[provider.OutputMode]string{
			provider.ModeJSON:   jsonPrompt,
			provider.ModeMdJSON: jsonPrompt + ". Return the JSON in a ```json code block.",
		},
		RetryPrompt:       DefaultRetryPrompt,
		FeedbackMarker:    DefaultFeedbackMarker,
		CorrectedMarker:   DefaultCorrectedMarker,
		PreventSchemaEcho: true,
		MatchPartialKeys:  true,
		Transport: TransportConfig{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML document on top of DefaultConfig and validates the result.
// Unknown keys are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration constraints.
func (c Config) Validate() error {
	if err := response.StructValidator().Struct(c); err != nil {
		fields := response.FieldErrors(err)
		errs := make([]error, 0, len(fields))
		for _, fe := range fields {
			errs = append(errs, fe)
		}
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Prompt renders the system prompt for the configured mode. It returns an empty string
// when the mode has no prompt.
func (c Config) Prompt(schema string) string {
	prompt := strings.TrimSpace(c.Prompts[c.Mode])
	if prompt == "" {
		return ""
	}
	return strings.ReplaceAll(prompt, SchemaPlaceholder, schema)
}

func (c Config) clone() Config {
	c.Prompts = maps.Clone(c.Prompts)
	c.Options = maps.Clone(c.Options)
	return c
}
