package slogx

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	id := uuid.MustParse("01938f3e-7c2a-7000-8000-000000000001")
	logger.Info("hello",
		LoggerName("test"),
		RunID(id),
		Attempt(2),
		Error(errors.New("boom")),
		Error(nil),
		JSON("payload", map[string]int{"a": 1}),
		JSON("unencodable", make(chan int)),
	)

	line := buf.String()
	require.True(t, gjson.Valid(line), line)
	assert.Equal(t, "test", gjson.Get(line, KeyLoggerName).String())
	assert.Equal(t, id.String(), gjson.Get(line, KeyRunID).String())
	assert.Equal(t, int64(2), gjson.Get(line, KeyAttempt).Int())
	assert.Equal(t, `{"a":1}`, gjson.Get(line, "payload").String())
	assert.NotEmpty(t, gjson.Get(line, "unencodable").String())
}
