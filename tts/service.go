// Package tts synthesizes response sentences to speech audio.
package tts

import (
	"context"
)

// Default audio settings for synthesized speech.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// Service converts text to speech audio.
// The interface abstracts providers so sentence synthesis can run against
// any backend interchangeably.
type Service interface {
	// Name returns the provider identifier, for logging.
	Name() string

	// Synthesize converts text to 16-bit little-endian PCM at the
	// config's sample rate.
	Synthesize(ctx context.Context, text string, config SynthesisConfig) ([]byte, error)
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the voice ID to use. Available voices vary by provider.
	Voice string

	// SampleRate is the output PCM sample rate in Hz. Default: 16000.
	SampleRate int

	// Speed is the speech rate multiplier (0.25-4.0, default 1.0).
	// Not all providers support speed adjustment.
	Speed float64

	// Language is the language code for synthesis (e.g., "en", "zh").
	Language string

	// Model is the TTS model to use (provider-specific).
	Model string
}

// DefaultSynthesisConfig returns sensible defaults for synthesis.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		SampleRate: DefaultSampleRate,
		Speed:      1.0,
	}
}
