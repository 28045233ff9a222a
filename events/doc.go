// Package events defines the signals emitted while an extraction runs and the Hook
// interface that receives them.
//
// The signal set and firing conditions are:
//   - FragmentReceived: every fragment pulled from the provider (or the complete reply of a
//     non streamed attempt)
//   - JSONExtracted: the assembler produced a new JSON candidate
//   - ToolCallStarted, ToolCallUpdated, ToolCallCompleted: tool call records changed
//   - PartialObject: a new, distinct partial value was produced
//   - RecoveryAttempt: a failed attempt is being resubmitted with feedback
//   - RecoveryLimitReached: the retry budget is spent
//   - FinalObject: the final value was requested by the caller, never from draining partials
//   - Error: the execution failed terminally
//
// Every event carries a Header with the run id, the attempt number, the sender and a
// timestamp. ToJSON and FromJSON move events across process boundaries with a "type"
// discriminator; Dispatch routes a decoded event back into a Hook.
//
// Example usage:
//
//	type printer struct{ events.NopHook }
//
//	func (printer) OnPartialObject(ctx context.Context, e events.PartialObject) {
//	    fmt.Println(e.Object)
//	}
//
//	hook := events.Compose(printer{}, events.LoggingHook(slog.Default()))
package events
