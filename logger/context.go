package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeySessionID identifies the device connection session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyDeviceID identifies the physical device.
	ContextKeyDeviceID contextKey = "device_id"

	// ContextKeyDialogueID identifies one user-utterance-to-response exchange.
	ContextKeyDialogueID contextKey = "dialogue_id"

	// ContextKeyProvider identifies the STT/TTS provider (e.g., "deepgram", "elevenlabs").
	ContextKeyProvider contextKey = "provider"

	// ContextKeyStage identifies the pipeline stage (e.g., "capture", "transcribe", "deliver").
	ContextKeyStage contextKey = "stage"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyDeviceID,
	ContextKeyDialogueID,
	ContextKeyProvider,
	ContextKeyStage,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithDeviceID returns a new context with the device ID set.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ContextKeyDeviceID, deviceID)
}

// WithDialogueID returns a new context with the dialogue ID set.
func WithDialogueID(ctx context.Context, dialogueID string) context.Context {
	return context.WithValue(ctx, ContextKeyDialogueID, dialogueID)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithStage returns a new context with the pipeline stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	SessionID  string
	DeviceID   string
	DialogueID string
	Provider   string
	Stage      string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.DeviceID != "" {
		ctx = WithDeviceID(ctx, fields.DeviceID)
	}
	if fields.DialogueID != "" {
		ctx = WithDialogueID(ctx, fields.DialogueID)
	}
	if fields.Provider != "" {
		ctx = WithProvider(ctx, fields.Provider)
	}
	if fields.Stage != "" {
		ctx = WithStage(ctx, fields.Stage)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
// Returns a LoggingFields struct with all values found in the context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeySessionID); v != nil {
		fields.SessionID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyDeviceID); v != nil {
		fields.DeviceID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyDialogueID); v != nil {
		fields.DialogueID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyProvider); v != nil {
		fields.Provider, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStage); v != nil {
		fields.Stage, _ = v.(string)
	}
	return fields
}
