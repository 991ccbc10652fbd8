package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelWarn, Format: FormatJSON})

	logger.Info("dropped")
	logger.Warn("kept", Plane("broker"), Err(errors.New("boom")))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "warn", gjson.GetBytes(line, "level").String())
	assert.Equal(t, "kept", gjson.GetBytes(line, "message").String())
	assert.Equal(t, "broker", gjson.GetBytes(line, KeyPlane).String())
	assert.Equal(t, "boom", gjson.GetBytes(line, "error").String())
}

func TestStdLoggerWritesThroughHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelDebug, Format: FormatJSON})

	StdLogger(logger).Print("socket event")

	assert.Equal(t, "debug", gjson.GetBytes(bytes.TrimSpace(buf.Bytes()), "level").String())
	assert.Contains(t, buf.String(), "socket event")
}

func TestErrNil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value.String())
}
