package audio

import (
	"context"
	"sync"
)

// Status classifies one processed frame relative to utterance boundaries.
type Status int

const (
	// StatusIdle means no speech activity; the frame produced no effect.
	StatusIdle Status = iota
	// StatusSpeechStart means this frame triggered the start of an utterance.
	StatusSpeechStart
	// StatusSpeechContinue means speech is ongoing within an utterance.
	StatusSpeechContinue
	// StatusSpeechEnd means this frame closed the current utterance.
	StatusSpeechEnd
	// StatusError means frame classification failed; the frame is dropped.
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSpeechStart:
		return "speech_start"
	case StatusSpeechContinue:
		return "speech_continue"
	case StatusSpeechEnd:
		return "speech_end"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the transient value produced per processed frame.
type Result struct {
	Status Status

	// Frame is the decoded PCM payload, nil when the frame was dropped.
	Frame []byte
}

// FrameDecoder converts a compressed inbound frame to 16-bit PCM.
// Decoding is a codec concern; see the codec package for the opus implementation.
type FrameDecoder interface {
	DecodeToBytes(frame []byte) ([]byte, error)
}

// Capturer is the per-session capture state machine. It decodes inbound
// frames, runs them through an Analyzer, and maps activity-state
// transitions onto utterance boundaries. It also accumulates the raw PCM
// of the current utterance so the full user audio can be saved once the
// utterance is finalized.
//
// A Capturer is owned by exactly one session. Process is safe to call
// concurrently with RawAudio and Reset.
type Capturer struct {
	analyzer Analyzer
	decoder  FrameDecoder

	mu        sync.Mutex
	capturing bool
	rawFrames [][]byte
}

// NewCapturer creates a Capturer using the given analyzer and frame decoder.
// decoder may be nil, in which case frames are assumed to already be PCM.
func NewCapturer(analyzer Analyzer, decoder FrameDecoder) *Capturer {
	return &Capturer{
		analyzer: analyzer,
		decoder:  decoder,
	}
}

// Process classifies one inbound frame. Classification failures yield
// StatusError and drop the frame; the capturer remains usable for the
// next frame.
func (c *Capturer) Process(ctx context.Context, frame []byte) Result {
	pcm := frame
	if c.decoder != nil {
		decoded, err := c.decoder.DecodeToBytes(frame)
		if err != nil {
			return Result{Status: StatusError}
		}
		pcm = decoded
	}

	if _, err := c.analyzer.Analyze(ctx, pcm); err != nil {
		return Result{Status: StatusError}
	}

	state := c.analyzer.State()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.capturing && (state == StateStarting || state == StateSpeaking):
		c.capturing = true
		c.rawFrames = append(c.rawFrames, pcm)
		return Result{Status: StatusSpeechStart, Frame: pcm}

	case c.capturing && state == StateQuiet:
		c.capturing = false
		return Result{Status: StatusSpeechEnd, Frame: pcm}

	case c.capturing:
		c.rawFrames = append(c.rawFrames, pcm)
		return Result{Status: StatusSpeechContinue, Frame: pcm}

	default:
		return Result{Status: StatusIdle, Frame: pcm}
	}
}

// Capturing reports whether an utterance is currently open.
func (c *Capturer) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// RawAudio returns the concatenated raw PCM of the current utterance.
// Returns nil if no frames were accumulated.
func (c *Capturer) RawAudio() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rawFrames) == 0 {
		return nil
	}

	total := 0
	for _, f := range c.rawFrames {
		total += len(f)
	}
	merged := make([]byte, 0, total)
	for _, f := range c.rawFrames {
		merged = append(merged, f...)
	}
	return merged
}

// Reset clears capture state and accumulated audio for the next utterance.
func (c *Capturer) Reset() {
	c.mu.Lock()
	c.capturing = false
	c.rawFrames = nil
	c.mu.Unlock()

	c.analyzer.Reset()
}
