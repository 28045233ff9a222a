/*
Package openai implements provider.Provider on top of the OpenAI chat completions API.

Requests are translated from the normalized provider.Request. The output mode decides
how structured output is requested:

  - json asks for a JSON object response format
  - json_schema sends the target schema as a strict JSON schema response format
  - tools declares one function built from the schema and forces the model to call it
  - text and md_json send the conversation as is

Streaming is pull based. Stream opens the server-sent event stream and every call to
Next reads at most one chunk from the connection. A chunk that carries several tool
call deltas is split into several fragments. When usage reporting is on, the usage
frame sent after the finish reason is folded into the terminal fragment.

Models are registered by name and share their provider:

	m := openai.GPT4oMini(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
	p := m.Provider()

Options understood in provider.Request.Options are temperature, top_p, max_tokens,
seed and user. Other keys are ignored.
*/
package openai
