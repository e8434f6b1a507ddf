// Package pipeline orders concurrently synthesized response sentences for
// strictly sequential playback delivery.
//
// Sentences enter a Queue in the order the response producer emits them
// and receive monotonically increasing sequence numbers. Synthesis runs
// concurrently and completes out of order; the Queue releases sentences to
// the Sender strictly by sequence, with a staleness timeout so one stuck
// synthesis cannot stall the sentences queued behind it.
package pipeline

import "time"

// Sentence is one unit of synthesized response audio awaiting delivery.
// All mutable fields are guarded by the owning Queue's mutex.
type Sentence struct {
	// Seq is the delivery order position, assigned at enqueue time.
	Seq int32

	// DialogueID identifies the turn this sentence belongs to.
	DialogueID string

	// Text is the sentence content sent alongside the audio.
	Text string

	// IsFirst marks the opening sentence of a turn.
	IsFirst bool

	// IsLast marks the closing sentence of a turn. Exactly one sentence
	// per turn carries it, possibly with empty text.
	IsLast bool

	enqueuedAt time.Time
	ready      bool
	failed     bool
	frames     [][]byte
}

// Frames returns the synthesized audio frames. Nil when synthesis failed
// or timed out; such sentences are still delivered so ordering and the
// turn-end marker survive.
func (s *Sentence) Frames() [][]byte {
	return s.frames
}

// Failed reports whether synthesis failed or timed out for this sentence.
func (s *Sentence) Failed() bool {
	return s.failed
}
