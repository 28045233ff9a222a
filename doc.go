/*
Package instruct extracts validated, strongly typed values from language model output.

A target is a Go type. Its JSON schema is reflected once and sent to the model as a tool
definition, a response format or a prompt, depending on the output mode. The reply is
assembled while it streams, validated when it is complete and, when validation fails,
the conversation is extended with feedback and resubmitted until the retry budget runs out.

# Basic Usage

	type Person struct {
		Name string `json:"name" validate:"required"`
		Age  int    `json:"age" validate:"gte=0,lte=150"`
	}

	x, err := instruct.New[Person](openai.GPT4oMini().Provider(),
		instruct.WithMaxRetries(2),
		instruct.Streaming(true),
	)
	if err != nil {
		return err
	}

	exec := x.Create(provider.User("Ann is 30 years old"))
	defer exec.Close()

	for p, err := range exec.Partials(ctx) {
		if err != nil {
			return err
		}
		fmt.Println("partial:", p)
	}

	person, err := exec.Get(ctx)

# Executions

An Execution is pull based. Next advances it by exactly one fragment and never reads
ahead. Partials wraps Next and only yields values that differ from the previously yielded
one. Get drives the execution to its end and caches the outcome, so calling it again never
contacts the provider.

Every attempt is evaluated the same way, streamed or not:

  - the tool call arguments (tools mode) or the text content is located
  - the JSON document is extracted from it
  - the document is decoded, transformed and validated

A failure in any of these steps is a validation failure. While retries are left, the failed
output and a feedback message are appended to the conversation and a new attempt starts.
The feedback message lists, in order, the feedback marker with the retry prompt, the error
details and the corrected response marker. When the budget is spent the execution fails
with a *RecoveryExhaustedError. Provider errors end the execution right away with a
*TransportError.

# Events

Hooks registered with WithHook observe fragments, extracted JSON, tool calls, partial
values, recovery attempts and the final value. The final value event fires from Get only,
once per execution.

# Configuration

Config holds the serializable settings and can be loaded from YAML:

	cfg, err := instruct.LoadConfig(f)
	x, err := instruct.New[Person](p, instruct.WithConfig(cfg))
*/
package instruct
