// Package provider defines the contract between the extraction pipeline and inference
// backends (like OpenAI). Backends accept a normalized Request and answer with either one
// complete InferenceResponse or a pull-based Stream of PartialInferenceResponse fragments.
//
// Design decisions:
//   - Pull, not push: a Stream hands out one fragment per Next call so consumers can stop
//     at any point without the backend buffering the rest of the reply
//   - Normalized fragments: each fragment carries at most one content delta and one tool
//     call delta, whatever the backend's wire format groups together
//   - Transport concerns stay here: RetryPolicy is applied by the backend client and is
//     unrelated to the validation-driven recovery loop
//   - JSON codecs: fragments and responses encode with a "type" discriminator so captured
//     streams can be replayed
//
// Example usage:
//
//	p := openai.New()
//	stream, err := p.Stream(ctx, provider.Request{
//	    Messages: []provider.Message{provider.User("Ann is 30")},
//	    Mode:     provider.ModeJSON,
//	    Model:    "gpt-4o-mini",
//	    Stream:   true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    frag, err := stream.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(frag.ContentDelta)
//	}
package provider
