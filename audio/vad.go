// Package audio provides voice activity detection and utterance capture for
// real-time spoken dialogue sessions.
//
// Processing is two-staged:
//
//  1. An Analyzer classifies raw PCM frames into voice-activity states.
//  2. A Capturer maps activity-state transitions onto utterance boundaries
//     (speech start / continue / end) that drive streaming transcription.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Default detection parameter values.
const (
	DefaultConfidence = 0.5
	DefaultStartSecs  = 0.2
	DefaultStopSecs   = 0.8
	DefaultMinVolume  = 0.01
	DefaultSampleRate = 16000
)

const (
	// smoothingAlpha is the exponential smoothing factor applied to RMS values.
	smoothingAlpha = 0.3
	// pcmBytesPerSample is the number of bytes per 16-bit PCM sample.
	pcmBytesPerSample = 2
	// pcmMaxAmplitude is the maximum amplitude for 16-bit signed audio.
	pcmMaxAmplitude = 32768.0
	// maxExpectedRMS is the expected maximum RMS for voice audio.
	maxExpectedRMS = 0.5
)

// State represents the current voice activity state.
type State int

const (
	// StateQuiet indicates no voice activity detected.
	StateQuiet State = iota
	// StateStarting indicates voice is starting (within start threshold).
	StateStarting
	// StateSpeaking indicates active speech.
	StateSpeaking
	// StateStopping indicates voice is stopping (within stop threshold).
	StateStopping
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateQuiet:
		return "quiet"
	case StateStarting:
		return "starting"
	case StateSpeaking:
		return "speaking"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Params configures voice activity detection behavior.
type Params struct {
	// Confidence threshold for voice detection (0.0-1.0, default: 0.5).
	// Higher values require more confidence before triggering.
	Confidence float64 `yaml:"confidence"`

	// StartSecs is seconds of speech required to trigger StateSpeaking (default: 0.2).
	// Prevents false starts from brief noise.
	StartSecs float64 `yaml:"start_secs"`

	// StopSecs is seconds of silence required to trigger StateQuiet (default: 0.8).
	// Allows natural pauses without ending the utterance.
	StopSecs float64 `yaml:"stop_secs"`

	// MinVolume is the minimum RMS volume threshold (default: 0.01).
	// Audio below this is treated as silence.
	MinVolume float64 `yaml:"min_volume"`

	// SampleRate is the audio sample rate in Hz (default: 16000).
	SampleRate int `yaml:"sample_rate"`
}

// DefaultParams returns sensible defaults for voice activity detection.
func DefaultParams() Params {
	return Params{
		Confidence: DefaultConfidence,
		StartSecs:  DefaultStartSecs,
		StopSecs:   DefaultStopSecs,
		MinVolume:  DefaultMinVolume,
		SampleRate: DefaultSampleRate,
	}
}

// Validate checks that detection parameters are within acceptable ranges.
func (p Params) Validate() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return &ValidationError{Field: "Confidence", Message: "must be between 0.0 and 1.0"}
	}
	if p.StartSecs < 0 {
		return &ValidationError{Field: "StartSecs", Message: "must be non-negative"}
	}
	if p.StopSecs < 0 {
		return &ValidationError{Field: "StopSecs", Message: "must be non-negative"}
	}
	if p.MinVolume < 0 || p.MinVolume > 1 {
		return &ValidationError{Field: "MinVolume", Message: "must be between 0.0 and 1.0"}
	}
	if p.SampleRate <= 0 {
		return &ValidationError{Field: "SampleRate", Message: "must be positive"}
	}
	return nil
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// Analyzer analyzes audio for voice activity.
type Analyzer interface {
	// Name returns the analyzer identifier.
	Name() string

	// Analyze processes one PCM frame and returns voice probability (0.0-1.0).
	Analyze(ctx context.Context, frame []byte) (float64, error)

	// State returns the current activity state based on accumulated analysis.
	State() State

	// Reset clears accumulated state for a new utterance.
	Reset()
}

// RMSAnalyzer is a voice activity detector using Root Mean Square energy
// analysis. It provides a lightweight implementation without requiring
// external ML models.
type RMSAnalyzer struct {
	params Params

	mu          sync.RWMutex
	state       State
	stateSecs   float64
	smoothedRMS float64
}

// NewRMSAnalyzer creates an RMSAnalyzer with the given parameters.
func NewRMSAnalyzer(params Params) (*RMSAnalyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &RMSAnalyzer{
		params: params,
		state:  StateQuiet,
	}, nil
}

// Name returns the analyzer identifier.
func (a *RMSAnalyzer) Name() string {
	return "rms"
}

// Analyze processes one frame and returns voice probability based on RMS volume.
// Hold times advance by the frame's audio duration rather than wall clock,
// so detection depends only on the samples fed in.
func (a *RMSAnalyzer) Analyze(ctx context.Context, frame []byte) (float64, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	if len(frame)%pcmBytesPerSample != 0 {
		return 0, fmt.Errorf("frame length %d is not sample aligned", len(frame))
	}

	rms := calculateRMS(frame)
	frameSecs := float64(len(frame)/pcmBytesPerSample) / float64(a.params.SampleRate)

	a.mu.Lock()
	a.smoothedRMS = smoothingAlpha*rms + (1-smoothingAlpha)*a.smoothedRMS
	smoothed := a.smoothedRMS
	a.mu.Unlock()

	probability := a.rmsToProbability(smoothed)
	a.updateState(probability, frameSecs)

	return probability, nil
}

// calculateRMS computes the Root Mean Square of 16-bit little-endian PCM samples.
func calculateRMS(frame []byte) float64 {
	numSamples := len(frame) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(frame[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}

// rmsToProbability converts a smoothed RMS value to a voice probability.
func (a *RMSAnalyzer) rmsToProbability(rms float64) float64 {
	if rms <= a.params.MinVolume {
		return 0
	}

	// Typical voice RMS is 0.05-0.3 for normalized audio.
	probability := (rms - a.params.MinVolume) / (maxExpectedRMS - a.params.MinVolume)

	if probability < 0 {
		return 0
	}
	if probability > 1 {
		return 1
	}
	return probability
}

// nextState determines the next state from the current state, probability
// and time spent in the current state.
func (a *RMSAnalyzer) nextState(current State, probability, stateSecs float64) State {
	aboveThreshold := probability >= a.params.Confidence

	switch current {
	case StateQuiet:
		if aboveThreshold {
			return StateStarting
		}
	case StateStarting:
		if !aboveThreshold {
			return StateQuiet
		}
		if stateSecs >= a.params.StartSecs {
			return StateSpeaking
		}
	case StateSpeaking:
		if !aboveThreshold {
			return StateStopping
		}
	case StateStopping:
		if aboveThreshold {
			return StateSpeaking
		}
		if stateSecs >= a.params.StopSecs {
			return StateQuiet
		}
	}
	return current
}

// updateState advances the activity state machine by one frame.
func (a *RMSAnalyzer) updateState(probability, frameSecs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stateSecs += frameSecs

	newState := a.nextState(a.state, probability, a.stateSecs)
	if newState != a.state {
		a.state = newState
		a.stateSecs = 0
	}
}

// State returns the current activity state.
func (a *RMSAnalyzer) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Reset clears accumulated state for a new utterance.
func (a *RMSAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateQuiet
	a.stateSecs = 0
	a.smoothedRMS = 0
}
