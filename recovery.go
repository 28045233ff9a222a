package instruct

import (
	"strings"

	"github.com/casualjim/instruct/provider"
	"github.com/casualjim/instruct/response"
)

// RecoveryState is the state of an execution's recovery loop.
type RecoveryState int

const (
	StateExtracting RecoveryState = iota
	StateValidating
	StateSucceeded
	StateRetrying
	StateExhausted
	// StateFailed marks an execution ended by a transport error, cancellation or Close.
	StateFailed
)

func (s RecoveryState) String() string {
	switch s {
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateSucceeded:
		return "succeeded"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempt will be made.
func (s RecoveryState) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateFailed
}

// RecoveryAttempt describes a resubmission after a failed attempt.
type RecoveryAttempt struct {
	// Attempt is the attempt that is about to start.
	Attempt  int
	Err      error
	Feedback []provider.Message
}

// feedback builds the messages appended to the conversation after a failed attempt:
// the failed output as an assistant turn, then one user turn holding the feedback marker
// with the retry prompt, the error details and the corrected response marker, in that order.
func feedback(cfg Config, failedOutput string, err error) []provider.Message {
	var msgs []provider.Message
	if strings.TrimSpace(failedOutput) != "" {
		msgs = append(msgs, provider.Assistant(failedOutput))
	}

	var b strings.Builder
	b.WriteString(cfg.FeedbackMarker)
	b.WriteString("\n")
	b.WriteString(cfg.RetryPrompt)
	b.WriteString("\n")
	for _, detail := range errorDetails(err) {
		b.WriteString("- ")
		b.WriteString(detail)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(cfg.CorrectedMarker)

	return append(msgs, provider.User(b.String()))
}

func errorDetails(err error) []string {
	if err == nil {
		return nil
	}
	fields := response.FieldErrors(err)
	if len(fields) == 0 {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(fields))
	for _, fe := range fields {
		details = append(details, fe.Error())
	}
	return details
}
