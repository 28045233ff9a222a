package slogx

import (
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyRunID is the key for the execution id attribute.
	KeyRunID = "run_id"
	// KeyAttempt is the key for the attempt attribute.
	KeyAttempt = "attempt"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message, or an empty
// string for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName creates a slog.Attr with the provided logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// RunID identifies the execution a log line belongs to.
func RunID(id uuid.UUID) slog.Attr {
	return slog.String(KeyRunID, id.String())
}

// Attempt records the 1-based attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// JSON renders value as a JSON string attribute. The value is only serialized when the
// record is actually handled.
func JSON(key string, value any) slog.Attr {
	return slog.Any(key, jsonValuer{value: value})
}

type jsonValuer struct {
	value any
}

func (j jsonValuer) LogValue() slog.Value {
	b, err := json.Marshal(j.value)
	if err != nil {
		return slog.StringValue(fmt.Sprintf("%+v", j.value))
	}
	return slog.StringValue(string(b))
}
