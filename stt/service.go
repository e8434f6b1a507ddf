// Package stt transcribes captured utterance audio to text.
//
// Two provider shapes are supported: batch services that transcribe a
// complete utterance at once, and streaming services fed frames as they
// arrive. Adapt lets a batch service serve the streaming pipeline.
package stt

import (
	"context"
)

const (
	// Default audio settings.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// Common audio formats.
	FormatPCM = "pcm"
	FormatWAV = "wav"
)

// Service transcribes a complete utterance.
type Service interface {
	// Name returns the provider identifier, for logging.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error)
}

// StreamingService transcribes audio incrementally as frames arrive.
type StreamingService interface {
	// Name returns the provider identifier, for logging.
	Name() string

	// StreamTranscribe consumes PCM frames until the channel closes or
	// ctx is canceled, then returns the final transcript.
	StreamTranscribe(ctx context.Context, frames <-chan []byte, config TranscriptionConfig) (string, error)
}

// TranscriptionConfig configures speech-to-text transcription.
type TranscriptionConfig struct {
	// Format is the audio format ("pcm", "wav"). Default: "pcm".
	Format string

	// SampleRate is the audio sample rate in Hz. Default: 16000.
	SampleRate int

	// Channels is the number of audio channels. Default: 1.
	Channels int

	// BitDepth is the bits per sample for PCM audio. Default: 16.
	BitDepth int

	// Language is a hint for the transcription language (e.g., "en", "zh").
	// Optional, improves accuracy if provided.
	Language string

	// Model is the STT model to use (provider-specific).
	Model string
}

// DefaultTranscriptionConfig returns sensible defaults for transcription.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Format:     FormatPCM,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// Adapt wraps a batch Service as a StreamingService by accumulating
// frames until end of utterance, then transcribing the whole buffer.
func Adapt(svc Service) StreamingService {
	return &batchAdapter{svc: svc}
}

type batchAdapter struct {
	svc Service
}

func (a *batchAdapter) Name() string {
	return a.svc.Name()
}

func (a *batchAdapter) StreamTranscribe(
	ctx context.Context, frames <-chan []byte, config TranscriptionConfig,
) (string, error) {
	var audio []byte
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return a.svc.Transcribe(ctx, audio, config)
			}
			audio = append(audio, frame...)
		}
	}
}
