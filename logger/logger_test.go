package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects the logger output to a buffer for the duration of fn.
func captureOutput(t *testing.T, level slog.Level, fn func()) string {
	t.Helper()

	var buf bytes.Buffer
	prev := logOutput
	prevLogger := DefaultLogger
	logOutput = &buf
	SetLevel(level)
	defer func() {
		logOutput = prev
		DefaultLogger = prevLogger
	}()

	fn()
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestInfoIncludesAttributes(t *testing.T) {
	out := captureOutput(t, slog.LevelInfo, func() {
		Info("session created", "session_id", "sess-1")
	})
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, "sess-1")
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	out := captureOutput(t, slog.LevelInfo, func() {
		Debug("noisy frame detail")
	})
	assert.Empty(t, out)
}

func TestContextFieldsExtracted(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-42")
	ctx = WithDialogueID(ctx, "dlg-7")
	ctx = WithProvider(ctx, "elevenlabs")

	out := captureOutput(t, slog.LevelInfo, func() {
		InfoContext(ctx, "delivering sentence")
	})
	assert.Contains(t, out, "session_id=sess-42")
	assert.Contains(t, out, "dialogue_id=dlg-7")
	assert.Contains(t, out, "provider=elevenlabs")
}

func TestExtractLoggingFields(t *testing.T) {
	ctx := WithLoggingContext(context.Background(), &LoggingFields{
		SessionID: "s1",
		DeviceID:  "dev-a",
		Stage:     "capture",
	})

	fields := ExtractLoggingFields(ctx)
	assert.Equal(t, "s1", fields.SessionID)
	assert.Equal(t, "dev-a", fields.DeviceID)
	assert.Equal(t, "capture", fields.Stage)
	assert.Empty(t, fields.DialogueID)
}

func TestConfigureJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	prev := logOutput
	prevLogger := DefaultLogger
	logOutput = &buf
	defer func() {
		logOutput = prev
		DefaultLogger = prevLogger
	}()

	err := Configure(&Config{
		Level:        "warn",
		Format:       FormatJSON,
		CommonFields: map[string]string{"service": "voiceloop"},
	})
	require.NoError(t, err)

	Info("should be filtered")
	Warn("stuck synthesis", "seq", 3)

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, `"stuck synthesis"`)
	assert.Contains(t, out, `"service":"voiceloop"`)
}

func TestRedactSensitiveData(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		notIn string
	}{
		{
			name:  "openai key",
			in:    "auth sk-abcdefghijklmnopqrstuvwxyz0123456789",
			want:  "sk-a...[REDACTED]",
			notIn: "0123456789",
		},
		{
			name:  "bearer token",
			in:    "Authorization: Bearer super-secret-token",
			want:  "Bearer [REDACTED]",
			notIn: "super-secret-token",
		},
		{
			name:  "deepgram token",
			in:    "Token 0123456789abcdef0123456789abcdef",
			want:  "Token [REDACTED]",
			notIn: "abcdef0123",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RedactSensitiveData(tc.in)
			assert.Contains(t, got, tc.want)
			assert.NotContains(t, got, tc.notIn)
		})
	}
}
