package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/logger"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

	// ElevenLabsModelMultilingual is the multilingual v2 model.
	ElevenLabsModelMultilingual = "eleven_multilingual_v2"
	// ElevenLabsModelTurbo is the fast turbo v2.5 model.
	ElevenLabsModelTurbo = "eleven_turbo_v2_5"

	defaultElevenLabsTimeout = 60 * time.Second

	elevenLabsServerErrorThreshold = 500

	elevenLabsDefaultStability       = 0.5
	elevenLabsDefaultSimilarityBoost = 0.75

	// Default voice ID (Rachel).
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"

	// elevenLabsPCMRate is the rate of the pcm_24000 output format.
	elevenLabsPCMRate = 24000
)

// ElevenLabsService implements TTS using ElevenLabs' API. Output is
// requested as raw PCM and resampled to the configured rate.
type ElevenLabsService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// ElevenLabsOption configures the ElevenLabs TTS service.
type ElevenLabsOption func(*ElevenLabsService)

// WithElevenLabsBaseURL sets a custom base URL.
func WithElevenLabsBaseURL(url string) ElevenLabsOption {
	return func(s *ElevenLabsService) { s.baseURL = url }
}

// WithElevenLabsClient sets a custom HTTP client.
func WithElevenLabsClient(client *http.Client) ElevenLabsOption {
	return func(s *ElevenLabsService) { s.client = client }
}

// WithElevenLabsModel sets the TTS model.
func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(s *ElevenLabsService) { s.model = model }
}

// NewElevenLabs creates an ElevenLabs TTS service.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) *ElevenLabsService {
	s := &ElevenLabsService{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: defaultElevenLabsTimeout},
		model:   ElevenLabsModelMultilingual,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *ElevenLabsService) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize converts one sentence to PCM using ElevenLabs' TTS API.
func (s *ElevenLabsService) Synthesize(
	ctx context.Context, text string, config SynthesisConfig,
) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := config.Voice
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}
	model := config.Model
	if model == "" {
		model = s.model
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       elevenLabsDefaultStability,
			SimilarityBoost: elevenLabsDefaultSimilarityBoost,
			Speed:           config.Speed,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_24000", s.baseURL, voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError(s.Name(), "", "request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, s.apiError(resp.StatusCode, body)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewSynthesisError(s.Name(), "", "failed to read audio", err, true)
	}

	if sampleRate != elevenLabsPCMRate {
		pcm, err = audio.ResamplePCM16(pcm, elevenLabsPCMRate, sampleRate)
		if err != nil {
			return nil, NewSynthesisError(s.Name(), "", "failed to resample audio", err, false)
		}
	}
	return pcm, nil
}

func (s *ElevenLabsService) apiError(status int, body []byte) error {
	var apiErr struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	_ = json.Unmarshal(body, &apiErr)

	message := logger.RedactSensitiveData(apiErr.Detail.Message)
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewSynthesisError(s.Name(), apiErr.Detail.Status, message, ErrRateLimited, true)
	case status == http.StatusNotFound:
		return NewSynthesisError(s.Name(), apiErr.Detail.Status, message, ErrVoiceNotFound, false)
	default:
		return NewSynthesisError(s.Name(), apiErr.Detail.Status, message,
			nil, status >= elevenLabsServerErrorThreshold)
	}
}
