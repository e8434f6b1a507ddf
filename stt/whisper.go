package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/murmurlabs/voiceloop/codec"
	"github.com/murmurlabs/voiceloop/logger"
)

const (
	whisperBaseURL  = "https://api.openai.com/v1"
	whisperEndpoint = "/audio/transcriptions"

	// ModelWhisper1 is the OpenAI Whisper transcription model.
	ModelWhisper1 = "whisper-1"

	defaultWhisperTimeout = 60 * time.Second

	serverErrorThreshold = 500
)

// WhisperService implements batch STT using OpenAI's Whisper API.
type WhisperService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// WhisperOption configures the Whisper STT service.
type WhisperOption func(*WhisperService)

// WithWhisperBaseURL sets a custom base URL (for testing or proxies).
func WithWhisperBaseURL(url string) WhisperOption {
	return func(s *WhisperService) { s.baseURL = url }
}

// WithWhisperClient sets a custom HTTP client.
func WithWhisperClient(client *http.Client) WhisperOption {
	return func(s *WhisperService) { s.client = client }
}

// WithWhisperModel sets the transcription model.
func WithWhisperModel(model string) WhisperOption {
	return func(s *WhisperService) { s.model = model }
}

// NewWhisper creates a Whisper STT service.
func NewWhisper(apiKey string, opts ...WhisperOption) *WhisperService {
	s := &WhisperService{
		apiKey:  apiKey,
		baseURL: whisperBaseURL,
		client:  &http.Client{Timeout: defaultWhisperTimeout},
		model:   ModelWhisper1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *WhisperService) Name() string {
	return "openai-whisper"
}

// Transcribe converts audio to text using the Whisper API.
func (s *WhisperService) Transcribe(
	ctx context.Context, audio []byte, config TranscriptionConfig,
) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	format := config.Format
	if format == "" {
		format = FormatPCM
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	channels := config.Channels
	if channels == 0 {
		channels = DefaultChannels
	}

	audioData := audio
	filename := "audio." + format

	// Raw PCM needs a WAV container for Whisper.
	if format == FormatPCM {
		wav, err := codec.EncodeWAV(audio, sampleRate, channels)
		if err != nil {
			return "", fmt.Errorf("failed to wrap pcm audio: %w", err)
		}
		audioData = wav
		filename = "audio.wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	model := config.Model
	if model == "" {
		model = s.model
	}
	if err := writer.WriteField("model", model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if config.Language != "" {
		if err := writer.WriteField("language", config.Language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+whisperEndpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", NewTranscriptionError(s.Name(), "", "request failed", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTranscriptionError(s.Name(), "", "failed to read response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		return "", s.apiError(resp.StatusCode, body)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", NewTranscriptionError(s.Name(), "", "failed to parse response", err, false)
	}
	return result.Text, nil
}

func (s *WhisperService) apiError(status int, body []byte) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	message := logger.RedactSensitiveData(apiErr.Error.Message)
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", status)
	}

	if status == http.StatusTooManyRequests {
		return NewTranscriptionError(s.Name(), apiErr.Error.Code, message, ErrRateLimited, true)
	}
	return NewTranscriptionError(s.Name(), apiErr.Error.Code, message, nil, status >= serverErrorThreshold)
}
