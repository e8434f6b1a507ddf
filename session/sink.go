package session

import (
	"errors"
	"sync"
)

// Sink errors.
var (
	ErrSinkClosed = errors.New("audio sink is closed")
	ErrSinkFull   = errors.New("audio sink buffer is full")
)

// defaultSinkBuffer holds a few seconds of 60ms frames.
const defaultSinkBuffer = 64

// Sink is the inbound audio channel of one utterance. Frames pushed by
// the transport are consumed by the streaming transcriber. Close is
// idempotent and marks end of utterance to the consumer.
type Sink struct {
	ch        chan []byte
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewSink creates a Sink with the default buffer size.
func NewSink() *Sink {
	return &Sink{ch: make(chan []byte, defaultSinkBuffer)}
}

// Push offers a frame to the consumer. Frames are dropped rather than
// blocking the transport read loop when the consumer falls behind.
func (s *Sink) Push(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- frame:
		return nil
	default:
		return ErrSinkFull
	}
}

// Frames returns the consumer side. The channel is closed when the
// utterance ends.
func (s *Sink) Frames() <-chan []byte {
	return s.ch
}

// Close ends the utterance. Safe to call multiple times and concurrently
// with Push.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
}

// Closed reports whether the sink has been closed.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
