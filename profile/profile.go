// Package profile provides device profile storage: per-device speaker and
// interaction settings loaded at session start.
package profile

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrNotFound is returned when no profile exists for a device.
	ErrNotFound = errors.New("device profile not found")

	// ErrInvalidID is returned when an empty device ID is provided.
	ErrInvalidID = errors.New("invalid device ID")

	// ErrInvalidProfile is returned when a nil profile is saved.
	ErrInvalidProfile = errors.New("invalid device profile")
)

// DeviceProfile carries the per-device settings applied to a session.
type DeviceProfile struct {
	DeviceID string `json:"device_id"`

	// VoiceID selects the synthesis voice for responses.
	VoiceID string `json:"voice_id,omitempty"`

	// Language is the preferred transcription language hint.
	Language string `json:"language,omitempty"`

	// WakeWords are the phrases that open a turn without voice detection.
	WakeWords []string `json:"wake_words,omitempty"`

	// SystemPrompt customizes the response producer for this device.
	SystemPrompt string `json:"system_prompt,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Store defines persistent device profile storage.
type Store interface {
	// Load retrieves a profile by device ID. Returns ErrNotFound when no
	// profile exists.
	Load(ctx context.Context, deviceID string) (*DeviceProfile, error)

	// Save persists a profile.
	Save(ctx context.Context, p *DeviceProfile) error

	// Delete removes a profile. Deleting an unknown device is a no-op.
	Delete(ctx context.Context, deviceID string) error
}
