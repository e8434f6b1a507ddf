// Package respond produces the assistant's reply to a transcribed
// utterance as a stream of sentences.
//
// Producers emit sentences incrementally so synthesis can start before
// the full reply exists. Every turn emits exactly one sentence marked
// last; when the reply ends on a sentence boundary the marker is an
// empty sentence.
package respond

import "context"

// EmitFunc receives one reply sentence. isFirst marks the opening
// sentence of the turn, isLast the closing one. text may be empty on the
// closing marker.
type EmitFunc func(text string, isFirst, isLast bool)

// Request carries one transcribed utterance to the producer.
type Request struct {
	// SessionID identifies the device session.
	SessionID string

	// DialogueID identifies the turn.
	DialogueID string

	// Text is the user's transcribed utterance.
	Text string

	// SystemPrompt customizes the producer, from the device profile.
	SystemPrompt string

	// Language is the preferred reply language hint.
	Language string
}

// Producer streams reply sentences for one utterance.
type Producer interface {
	// Name returns the producer identifier, for logging.
	Name() string

	// StreamSentences generates the reply, calling emit once per
	// sentence in order. It must emit exactly one sentence with
	// isLast=true before returning nil. On error, nothing more is
	// emitted and the caller ends the turn.
	StreamSentences(ctx context.Context, req Request, emit EmitFunc) error
}
