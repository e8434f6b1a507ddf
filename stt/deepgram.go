package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/murmurlabs/voiceloop/logger"
)

const (
	deepgramWSURL = "wss://api.deepgram.com/v1/listen"

	defaultDeepgramHandshakeTimeout = 10 * time.Second
)

// DeepgramService implements streaming STT over Deepgram's real-time
// websocket API. Each StreamTranscribe call opens its own connection, so
// one service can serve concurrent utterances.
type DeepgramService struct {
	apiKey string
	wsURL  string
	dialer *websocket.Dialer
}

// DeepgramOption configures the Deepgram STT service.
type DeepgramOption func(*DeepgramService)

// WithDeepgramURL sets a custom websocket URL (for testing or proxies).
func WithDeepgramURL(url string) DeepgramOption {
	return func(s *DeepgramService) { s.wsURL = url }
}

// WithDeepgramDialer sets a custom websocket dialer.
func WithDeepgramDialer(d *websocket.Dialer) DeepgramOption {
	return func(s *DeepgramService) { s.dialer = d }
}

// NewDeepgram creates a Deepgram streaming STT service.
func NewDeepgram(apiKey string, opts ...DeepgramOption) *DeepgramService {
	s := &DeepgramService{
		apiKey: apiKey,
		wsURL:  deepgramWSURL,
		dialer: &websocket.Dialer{HandshakeTimeout: defaultDeepgramHandshakeTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *DeepgramService) Name() string {
	return "deepgram"
}

// deepgramMessage is the subset of Deepgram's response we care about.
type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// StreamTranscribe feeds frames to Deepgram as they arrive and returns
// the concatenated final transcript once the frame channel closes.
func (s *DeepgramService) StreamTranscribe(
	ctx context.Context, frames <-chan []byte, config TranscriptionConfig,
) (string, error) {
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	channels := config.Channels
	if channels == 0 {
		channels = DefaultChannels
	}

	url := fmt.Sprintf("%s?encoding=linear16&sample_rate=%d&channels=%d&punctuate=true",
		s.wsURL, sampleRate, channels)
	if config.Language != "" {
		url += "&language=" + config.Language
	}
	if config.Model != "" {
		url += "&model=" + config.Model
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+s.apiKey)

	conn, resp, err := s.dialer.DialContext(ctx, url, header)
	if err != nil {
		code := ""
		if resp != nil {
			code = fmt.Sprintf("%d", resp.StatusCode)
		}
		return "", NewTranscriptionError(s.Name(), code, "connection failed", err, true)
	}
	defer conn.Close()

	// Reader collects finalized transcript segments until the server
	// closes or errors.
	transcripts := make(chan string, 1)
	readErr := make(chan error, 1)
	go func() {
		var parts []string
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					transcripts <- strings.Join(parts, " ")
					return
				}
				readErr <- err
				return
			}

			var msg deepgramMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Debug("skipping unparseable transcriber message", "error", err)
				continue
			}
			if msg.Type != "Results" || !msg.IsFinal {
				continue
			}
			if len(msg.Channel.Alternatives) > 0 {
				if text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}()

	// Writer pumps frames until end of utterance, then asks the server
	// to finalize the stream.
	for frames != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-readErr:
			return "", NewTranscriptionError(s.Name(), "", "stream read failed", err, true)
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				break
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return "", NewTranscriptionError(s.Name(), "", "stream write failed", err, true)
			}
		}
	}

	if err := conn.WriteJSON(map[string]string{"type": "CloseStream"}); err != nil {
		return "", NewTranscriptionError(s.Name(), "", "failed to finalize stream", err, true)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-readErr:
		return "", NewTranscriptionError(s.Name(), "", "stream read failed", err, true)
	case text := <-transcripts:
		return text, nil
	}
}
