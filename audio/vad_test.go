package audio

import (
	"context"
	"encoding/binary"
	"testing"
)

// generatePCM produces a 16-bit little-endian mono buffer where every
// sample has the given amplitude.
func generatePCM(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*pcmBytesPerSample)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*pcmBytesPerSample:], uint16(amplitude))
	}
	return buf
}

func generateSilence(samples int) []byte {
	return generatePCM(0, samples)
}

// frameSamples is one 20ms frame at the default sample rate.
const frameSamples = DefaultSampleRate / 50

func TestDefaultParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params should validate: %v", err)
	}
}

func TestParamsValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"confidence above one", func(p *Params) { p.Confidence = 1.5 }},
		{"negative confidence", func(p *Params) { p.Confidence = -0.1 }},
		{"zero start secs", func(p *Params) { p.StartSecs = 0 }},
		{"zero stop secs", func(p *Params) { p.StopSecs = 0 }},
		{"zero sample rate", func(p *Params) { p.SampleRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAnalyzerStartsQuiet(t *testing.T) {
	a, err := NewRMSAnalyzer(DefaultParams())
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}
	if a.State() != StateQuiet {
		t.Errorf("initial state = %v, want %v", a.State(), StateQuiet)
	}
}

func TestAnalyzerDetectsSpeechAfterStartHold(t *testing.T) {
	params := DefaultParams()
	params.StartSecs = 0.04
	a, err := NewRMSAnalyzer(params)
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}

	ctx := context.Background()
	loud := generatePCM(16000, frameSamples)

	// Feed loud frames until the hold time elapses.
	for i := 0; i < 10; i++ {
		if _, err := a.Analyze(ctx, loud); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
	if a.State() != StateSpeaking {
		t.Errorf("state after sustained speech = %v, want %v", a.State(), StateSpeaking)
	}
}

func TestAnalyzerReturnsToQuietAfterStopHold(t *testing.T) {
	params := DefaultParams()
	params.StartSecs = 0.04
	params.StopSecs = 0.04
	a, err := NewRMSAnalyzer(params)
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}

	ctx := context.Background()
	loud := generatePCM(16000, frameSamples)
	quiet := generateSilence(frameSamples)

	for i := 0; i < 10; i++ {
		a.Analyze(ctx, loud)
	}
	if a.State() != StateSpeaking {
		t.Fatalf("expected speaking before silence, got %v", a.State())
	}

	for i := 0; i < 20; i++ {
		a.Analyze(ctx, quiet)
	}
	if a.State() != StateQuiet {
		t.Errorf("state after sustained silence = %v, want %v", a.State(), StateQuiet)
	}
}

func TestAnalyzerSilenceStaysQuiet(t *testing.T) {
	a, err := NewRMSAnalyzer(DefaultParams())
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		conf, err := a.Analyze(ctx, generateSilence(frameSamples))
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if conf > 0.2 {
			t.Errorf("silence confidence = %f, want near zero", conf)
		}
	}
	if a.State() != StateQuiet {
		t.Errorf("state = %v, want %v", a.State(), StateQuiet)
	}
}

func TestAnalyzerRejectsOddLengthFrame(t *testing.T) {
	a, err := NewRMSAnalyzer(DefaultParams())
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}
	if _, err := a.Analyze(context.Background(), []byte{0x01}); err == nil {
		t.Error("expected error for odd-length frame")
	}
}

func TestAnalyzerReset(t *testing.T) {
	params := DefaultParams()
	params.StartSecs = 0.04
	a, err := NewRMSAnalyzer(params)
	if err != nil {
		t.Fatalf("NewRMSAnalyzer: %v", err)
	}

	ctx := context.Background()
	loud := generatePCM(16000, frameSamples)
	for i := 0; i < 10; i++ {
		a.Analyze(ctx, loud)
	}
	a.Reset()
	if a.State() != StateQuiet {
		t.Errorf("state after reset = %v, want %v", a.State(), StateQuiet)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateQuiet, "quiet"},
		{StateStarting, "starting"},
		{StateSpeaking, "speaking"},
		{StateStopping, "stopping"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
