package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/murmurlabs/voiceloop/logger"
	metrics "github.com/murmurlabs/voiceloop/metrics/prometheus"
	"github.com/murmurlabs/voiceloop/pipeline"
)

const defaultWriteTimeout = 10 * time.Second

// Sender delivers sentences over one websocket connection, pacing audio
// frames at their playback rate so the device buffer never overruns.
// It implements pipeline.Sender; all connection writes go through it.
type Sender struct {
	conn          *websocket.Conn
	sessionID     string
	frameDuration time.Duration

	writeMu sync.Mutex
	playing atomic.Bool
	closed  atomic.Bool

	stopMu sync.Mutex
	stop   chan struct{}
}

// NewSender creates a Sender for one connection. frameDuration is the
// playback length of a single audio frame.
func NewSender(conn *websocket.Conn, sessionID string, frameDuration time.Duration) *Sender {
	return &Sender{
		conn:          conn,
		sessionID:     sessionID,
		frameDuration: frameDuration,
	}
}

// IsPlaying reports whether a sentence is currently being streamed out.
func (s *Sender) IsPlaying() bool {
	return s.playing.Load()
}

// Close marks the connection unusable; subsequent sends fail fast.
func (s *Sender) Close() {
	s.closed.Store(true)
}

// Send streams one sentence to the device: a sentence_start control
// message, the paced audio frames, and a sentence_end. Turn boundaries
// add tts start/stop framing. Sentences without audio still send their
// control messages so the device sees the text and the turn end.
func (s *Sender) Send(ctx context.Context, sent *pipeline.Sentence) error {
	if s.closed.Load() {
		return websocket.ErrCloseSent
	}

	s.stopMu.Lock()
	stop := make(chan struct{})
	s.stop = stop
	s.stopMu.Unlock()

	s.playing.Store(true)
	defer s.playing.Store(false)

	if sent.IsFirst {
		if err := s.writeJSON(ttsMessage{
			Type:      TypeTTS,
			SessionID: s.sessionID,
			State:     TTSStateStart,
		}); err != nil {
			return err
		}
	}

	if sent.Text != "" {
		if err := s.writeJSON(ttsMessage{
			Type:      TypeTTS,
			SessionID: s.sessionID,
			State:     TTSStateSentenceStart,
			Text:      sent.Text,
		}); err != nil {
			return err
		}
	}

	for _, frame := range sent.Frames() {
		if err := s.writeBinary(frame); err != nil {
			metrics.RecordSentenceDelivered("failed")
			return err
		}
		select {
		case <-ctx.Done():
			metrics.RecordSentenceDelivered("failed")
			return ctx.Err()
		case <-stop:
			// Playback was cut short; the stop envelope is written by
			// StopPlayback itself.
			metrics.RecordSentenceDelivered("failed")
			return nil
		case <-time.After(s.frameDuration):
		}
	}

	if sent.Text != "" {
		if err := s.writeJSON(ttsMessage{
			Type:      TypeTTS,
			SessionID: s.sessionID,
			State:     TTSStateSentenceEnd,
			Text:      sent.Text,
		}); err != nil {
			return err
		}
	}

	if sent.IsLast {
		if err := s.writeJSON(ttsMessage{
			Type:      TypeTTS,
			SessionID: s.sessionID,
			State:     TTSStateStop,
		}); err != nil {
			return err
		}
	}

	switch {
	case sent.Failed():
		metrics.RecordSentenceDelivered("silent")
	default:
		metrics.RecordSentenceDelivered("ok")
	}

	logger.Debug("sentence delivered",
		"session_id", s.sessionID,
		"dialogue_id", sent.DialogueID,
		"seq", sent.Seq,
		"frames", len(sent.Frames()))
	return nil
}

// StopPlayback aborts any in-flight frame pacing and tells the device to
// stop speaking. Safe to call with no delivery in progress.
func (s *Sender) StopPlayback(ctx context.Context) error {
	s.stopMu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.stopMu.Unlock()

	return s.writeJSON(ttsMessage{
		Type:      TypeTTS,
		SessionID: s.sessionID,
		State:     TTSStateStop,
	})
}

// NotifyTranscript reports the recognized utterance text to the device.
func (s *Sender) NotifyTranscript(ctx context.Context, dialogueID, text string) error {
	return s.writeJSON(sttMessage{
		Type:      TypeSTT,
		SessionID: s.sessionID,
		Text:      text,
	})
}

func (s *Sender) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Sender) writeBinary(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}
