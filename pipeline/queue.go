package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murmurlabs/voiceloop/logger"
)

// DefaultReadyTimeout is how long the head sentence may stay unready
// before it is delivered without audio to unblock the queue.
const DefaultReadyTimeout = 5 * time.Second

// Sender delivers one sentence downstream. Send blocks until the sentence
// has been handed off (including any playback pacing); the Queue never
// overlaps Send calls.
type Sender interface {
	Send(ctx context.Context, s *Sentence) error

	// IsPlaying reports whether the peer is still consuming earlier audio.
	// While true the Queue holds delivery.
	IsPlaying() bool
}

// TurnCompleteFunc is invoked after the last sentence of a turn has been
// delivered and the queue is empty.
type TurnCompleteFunc func(dialogueID string)

// Queue holds the in-flight sentences of one session and releases them to
// the Sender strictly in sequence order. Safe for concurrent use.
type Queue struct {
	sender       Sender
	readyTimeout time.Duration
	onTurnDone   TurnCompleteFunc
	log          *slog.Logger

	seq atomic.Int32

	mu   sync.Mutex
	live []*Sentence

	// deliver serializes delivery. Drive attempts are collapsed with
	// TryLock: whoever holds it drains everything deliverable, so a
	// failed attempt means another goroutine is already doing the work.
	deliver sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer
}

// Option configures a Queue.
type Option func(*Queue)

// WithReadyTimeout overrides the staleness timeout for unready sentences.
func WithReadyTimeout(d time.Duration) Option {
	return func(q *Queue) { q.readyTimeout = d }
}

// WithTurnComplete sets the callback fired when a turn finishes delivering.
func WithTurnComplete(fn TurnCompleteFunc) Option {
	return func(q *Queue) { q.onTurnDone = fn }
}

// WithLogger overrides the queue's logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a Queue delivering through sender.
func NewQueue(sender Sender, opts ...Option) *Queue {
	q := &Queue{
		sender:       sender,
		readyTimeout: DefaultReadyTimeout,
		log:          logger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Sender returns the delivery path. Callers may type-assert it for
// optional capabilities beyond sentence delivery.
func (q *Queue) Sender() Sender {
	return q.sender
}

// Add registers a sentence for eventual delivery and assigns its sequence
// number. The sentence is not deliverable until Complete or Fail is called
// for it, or the ready timeout elapses.
func (q *Queue) Add(ctx context.Context, dialogueID, text string, isFirst, isLast bool) *Sentence {
	s := &Sentence{
		Seq:        q.seq.Add(1),
		DialogueID: dialogueID,
		Text:       text,
		IsFirst:    isFirst,
		IsLast:     isLast,
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	q.live = append(q.live, s)
	q.mu.Unlock()

	// Arms the staleness timer even if no completion event ever arrives.
	q.Drive(ctx)

	return s
}

// Complete attaches synthesized audio to a sentence and attempts delivery.
func (q *Queue) Complete(ctx context.Context, s *Sentence, frames [][]byte) {
	q.mu.Lock()
	s.ready = true
	s.frames = frames
	q.mu.Unlock()

	q.Drive(ctx)
}

// Fail marks a sentence as unsynthesizable. It is still delivered in
// order, without audio, so the sequence and any turn-end marker survive.
func (q *Queue) Fail(ctx context.Context, s *Sentence) {
	q.mu.Lock()
	s.ready = true
	s.failed = true
	q.mu.Unlock()

	q.log.Debug("sentence marked failed, will deliver without audio",
		"dialogue_id", s.DialogueID,
		"seq", s.Seq)

	q.Drive(ctx)
}

// Len returns the number of undelivered sentences.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live)
}

// Clear drops all undelivered sentences, for turn aborts and session
// teardown. Late Complete calls for dropped sentences are no-ops.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.live = nil
	q.mu.Unlock()

	q.stopTimer()
}

// Drive attempts to deliver every currently deliverable sentence. It
// returns immediately when another goroutine is already delivering or the
// peer is still playing; completion and timeout events re-trigger it.
func (q *Queue) Drive(ctx context.Context) {
	if !q.deliver.TryLock() {
		return
	}
	defer q.deliver.Unlock()

	for {
		s, ok := q.takeHead()
		if !ok {
			return
		}

		turnDone := s.IsLast && q.Len() == 0

		if err := q.sender.Send(ctx, s); err != nil {
			q.log.Warn("sentence delivery failed",
				"dialogue_id", s.DialogueID,
				"seq", s.Seq,
				"error", err)
		}

		if turnDone && q.onTurnDone != nil {
			q.onTurnDone(s.DialogueID)
		}
	}
}

// takeHead removes and returns the lowest-sequence sentence if it is
// deliverable now. When the head exists but is not yet ready, a timer is
// armed to re-drive at its staleness deadline.
func (q *Queue) takeHead() (*Sentence, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.live) == 0 {
		return nil, false
	}
	if q.sender.IsPlaying() {
		return nil, false
	}

	head := 0
	for i, s := range q.live {
		if s.Seq < q.live[head].Seq {
			head = i
		}
	}
	s := q.live[head]

	if !s.ready {
		age := time.Since(s.enqueuedAt)
		if age < q.readyTimeout {
			q.armTimer(q.readyTimeout - age)
			return nil, false
		}
		// Head went stale. Deliver it silent so the rest of the turn
		// is not held hostage by one stuck synthesis.
		s.ready = true
		s.failed = true
		s.frames = nil
		q.log.Warn("sentence audio timed out, delivering without audio",
			"dialogue_id", s.DialogueID,
			"seq", s.Seq,
			"waited", age)
	}

	q.live = append(q.live[:head], q.live[head+1:]...)
	return s, true
}

func (q *Queue) armTimer(d time.Duration) {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(d, func() {
		q.Drive(context.Background())
	})
}

func (q *Queue) stopTimer() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}
