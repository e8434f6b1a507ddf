// Package session tracks connected device sessions: their attributes,
// listening state, inbound audio sink and outbound sentence queue.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/pipeline"
)

// Session is the state of one connected device.
type Session struct {
	// ID is the unique session identifier assigned at connect time.
	ID string

	// DeviceID is the stable device identity reported in the handshake.
	DeviceID string

	// CreatedAt is when the session was registered.
	CreatedAt time.Time

	// Queue orders this session's response sentences for delivery.
	Queue *pipeline.Queue

	// Capturer is this session's utterance capture state machine.
	Capturer *audio.Capturer

	listening  atomic.Bool
	processing atomic.Bool
	lastActive atomic.Int64

	mu         sync.Mutex
	attrs      map[string]any
	sink       *Sink
	dialogueID string
	closed     bool
}

// New creates a session with its delivery queue and capturer attached.
func New(id, deviceID string, queue *pipeline.Queue, capturer *audio.Capturer) *Session {
	s := &Session{
		ID:        id,
		DeviceID:  deviceID,
		CreatedAt: time.Now(),
		Queue:     queue,
		Capturer:  capturer,
		attrs:     make(map[string]any),
	}
	s.Touch()
	return s
}

// Touch records activity, for idle-session sweeping.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// SetListening switches whether inbound audio frames are processed.
func (s *Session) SetListening(v bool) {
	s.listening.Store(v)
}

// Listening reports whether inbound audio frames are processed.
func (s *Session) Listening() bool {
	return s.listening.Load()
}

// SetProcessing marks a turn as in flight, gating new utterance starts.
func (s *Session) SetProcessing(v bool) {
	s.processing.Store(v)
}

// Processing reports whether a turn is currently in flight.
func (s *Session) Processing() bool {
	return s.processing.Load()
}

// SetAttr stores a session attribute.
func (s *Session) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Attr returns a session attribute.
func (s *Session) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// StringAttr returns a string-typed attribute, or "" when absent.
func (s *Session) StringAttr(key string) string {
	v, ok := s.Attr(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// DeleteAttr removes a session attribute.
func (s *Session) DeleteAttr(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// SetDialogueID records the identifier of the current turn.
func (s *Session) SetDialogueID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogueID = id
}

// DialogueID returns the identifier of the current turn.
func (s *Session) DialogueID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogueID
}

// OpenSink creates a fresh inbound audio sink for a new utterance. Any
// previous sink is force-closed first so a stale consumer cannot absorb
// the new utterance's frames.
func (s *Session) OpenSink() *Sink {
	s.mu.Lock()
	prev := s.sink
	sink := NewSink()
	s.sink = sink
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return sink
}

// Sink returns the current inbound audio sink, nil when no utterance is open.
func (s *Session) Sink() *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// CloseSink ends the current utterance's audio stream.
func (s *Session) CloseSink() {
	s.mu.Lock()
	sink := s.sink
	s.sink = nil
	s.mu.Unlock()

	if sink != nil {
		sink.Close()
	}
}

// Close tears the session down: pending deliveries are dropped and the
// audio sink is closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sink := s.sink
	s.sink = nil
	s.mu.Unlock()

	if sink != nil {
		sink.Close()
	}
	if s.Queue != nil {
		s.Queue.Clear()
	}
	s.SetListening(false)
	s.SetProcessing(false)
}
