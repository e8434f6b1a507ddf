// Package transport speaks the device websocket protocol: JSON control
// messages interleaved with binary opus audio frames.
package transport

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged with devices.
const (
	TypeHello  = "hello"
	TypeListen = "listen"
	TypeAbort  = "abort"
	TypeText   = "text"
	TypeSTT    = "stt"
	TypeTTS    = "tts"
	TypeError  = "error"
)

// Listen states reported by devices.
const (
	ListenStateStart  = "start"
	ListenStateStop   = "stop"
	ListenStateDetect = "detect"
)

// TTS delivery states sent to devices.
const (
	TTSStateStart         = "start"
	TTSStateSentenceStart = "sentence_start"
	TTSStateSentenceEnd   = "sentence_end"
	TTSStateStop          = "stop"
)

// inboundMessage is the union of client control messages; Type selects
// which fields are meaningful.
type inboundMessage struct {
	Type string `json:"type"`

	// hello
	Version     int          `json:"version,omitempty"`
	Transport   string       `json:"transport,omitempty"`
	DeviceID    string       `json:"device_id,omitempty"`
	AudioParams *AudioParams `json:"audio_params,omitempty"`

	// listen
	State string `json:"state,omitempty"`
	Mode  string `json:"mode,omitempty"`

	// listen detect (wake word) and text
	Text string `json:"text,omitempty"`
}

func parseInbound(data []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("control message missing type")
	}
	return &msg, nil
}

// AudioParams declares the audio format a device speaks.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// helloReply acknowledges the handshake and assigns the session ID.
type helloReply struct {
	Type        string      `json:"type"`
	Transport   string      `json:"transport"`
	SessionID   string      `json:"session_id"`
	AudioParams AudioParams `json:"audio_params"`
}

// sttMessage reports the recognized utterance text back to the device.
type sttMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ttsMessage frames the delivery of synthesized sentences.
type ttsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Text      string `json:"text,omitempty"`
}

// errorMessage reports a protocol or processing error to the device.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
