package dialogue

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/pipeline"
	"github.com/murmurlabs/voiceloop/profile"
	"github.com/murmurlabs/voiceloop/respond"
	"github.com/murmurlabs/voiceloop/session"
	"github.com/murmurlabs/voiceloop/stt"
	"github.com/murmurlabs/voiceloop/tts"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

func (f *fakeTranscriber) StreamTranscribe(
	ctx context.Context, frames <-chan []byte, cfg stt.TranscriptionConfig,
) (string, error) {
	for range frames {
	}
	return f.text, f.err
}

type fakeProducer struct {
	sentences []string
	err       error
}

func (f *fakeProducer) Name() string { return "fake-producer" }

func (f *fakeProducer) StreamSentences(ctx context.Context, req respond.Request, emit respond.EmitFunc) error {
	if f.err != nil {
		return f.err
	}
	for i, s := range f.sentences {
		emit(s, i == 0, false)
	}
	emit("", false, true)
	return nil
}

type fakeSynthesizer struct {
	pcm []byte
	err error
}

func (f *fakeSynthesizer) Name() string { return "fake-tts" }

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string, cfg tts.SynthesisConfig) ([]byte, error) {
	return f.pcm, f.err
}

type passthroughEncoder struct{}

func (passthroughEncoder) Encode(pcm []byte) ([][]byte, error) { return [][]byte{pcm}, nil }
func (passthroughEncoder) Flush() ([][]byte, error)            { return nil, nil }

type recordingSender struct {
	mu        sync.Mutex
	delivered []*pipeline.Sentence
	stops     int
}

func (r *recordingSender) Send(ctx context.Context, s *pipeline.Sentence) error {
	r.mu.Lock()
	r.delivered = append(r.delivered, s)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) IsPlaying() bool { return false }

func (r *recordingSender) StopPlayback(ctx context.Context) error {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) stopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

func (r *recordingSender) sentences() []*pipeline.Sentence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*pipeline.Sentence, len(r.delivered))
	copy(out, r.delivered)
	return out
}

type testHarness struct {
	svc    *Service
	sess   *session.Session
	sender *recordingSender
}

func newHarness(t *testing.T, opts ...ServiceOption) *testHarness {
	t.Helper()

	params := audio.DefaultParams()
	params.StartSecs = 0.04
	params.StopSecs = 0.04

	base := []ServiceOption{
		WithVADParams(params),
		WithFrameEncoderFactory(func() (FrameEncoder, error) { return passthroughEncoder{}, nil }),
		WithFrameDecoderFactory(func() (audio.FrameDecoder, error) { return nil, nil }),
	}
	svc := NewService(
		session.NewRegistry(),
		&fakeTranscriber{text: "hello there"},
		&fakeProducer{sentences: []string{"Hi!", "Nice to meet you."}},
		&fakeSynthesizer{pcm: []byte{0x01, 0x00, 0x02, 0x00}},
		profile.NewMemoryStore(),
		append(base, opts...)...,
	)

	sender := &recordingSender{}
	sess, err := svc.StartSession(context.Background(), "sess-1", "device-1", sender)
	require.NoError(t, err)
	t.Cleanup(func() { svc.CloseSession("sess-1") })

	return &testHarness{svc: svc, sess: sess, sender: sender}
}

func loudFrame() []byte {
	buf := make([]byte, 640) // 20ms at 16kHz
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(16000)))
	}
	return buf
}

func quietFrame() []byte {
	return make([]byte, 640)
}

// speakUtterance drives the session through one voiced utterance.
func (h *testHarness) speakUtterance(ctx context.Context) {
	for i := 0; i < 10; i++ {
		h.svc.ProcessAudio(ctx, h.sess, loudFrame())
	}
	for i := 0; i < 20; i++ {
		h.svc.ProcessAudio(ctx, h.sess, quietFrame())
	}
}

func TestVoiceTurnEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.True(t, h.sess.Listening())
	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		return len(h.sender.sentences()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	got := h.sender.sentences()
	assert.Equal(t, "Hi!", got[0].Text)
	assert.True(t, got[0].IsFirst)
	assert.Equal(t, "Nice to meet you.", got[1].Text)
	assert.Equal(t, "", got[2].Text)
	assert.True(t, got[2].IsLast)

	// Delivery order follows sequence order.
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Less(t, got[1].Seq, got[2].Seq)

	// Session returns to listening once the turn is delivered.
	require.Eventually(t, func() bool {
		return h.sess.Listening() && !h.sess.Processing()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTranscriptionFailureResumesListening(t *testing.T) {
	h := newHarness(t)
	h.svc.transcriber = &fakeTranscriber{err: errors.New("stt unavailable")}
	ctx := context.Background()

	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		return h.sess.Listening() && !h.sess.Processing()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.sender.sentences())
}

func TestEmptyTranscriptResumesListening(t *testing.T) {
	h := newHarness(t)
	h.svc.transcriber = &fakeTranscriber{text: ""}
	ctx := context.Background()

	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		return h.sess.Listening() && !h.sess.Processing()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.sender.sentences())
}

func TestSynthesisFailureStillDeliversOrder(t *testing.T) {
	h := newHarness(t)
	h.svc.synthesizer = &fakeSynthesizer{err: errors.New("tts down")}
	ctx := context.Background()

	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		return len(h.sender.sentences()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	got := h.sender.sentences()
	assert.True(t, got[0].Failed())
	assert.Nil(t, got[0].Frames())
	assert.True(t, got[2].IsLast)
}

func TestHandleWakeWord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleWakeWord(ctx, h.sess, "hey assistant")

	require.Eventually(t, func() bool {
		return len(h.sender.sentences()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, h.sess.DialogueID())
}

func TestHandleTextIgnoredWhileProcessing(t *testing.T) {
	h := newHarness(t)
	h.sess.SetProcessing(true)

	h.svc.HandleText(context.Background(), h.sess, "hello")
	assert.Empty(t, h.sender.sentences())
}

func TestAbortDropsTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sess.SetProcessing(true)
	h.sess.SetListening(false)
	h.sess.SetDialogueID("d-abort")
	sink := h.sess.OpenSink()

	h.svc.Abort(ctx, h.sess)

	assert.True(t, sink.Closed())
	assert.True(t, h.sess.Listening())
	assert.False(t, h.sess.Processing())
	assert.Equal(t, 0, h.sess.Queue.Len())

	// Aborting also cuts short whatever the sender is still playing.
	assert.Equal(t, 1, h.sender.stopCalls())
}

func TestFramesDroppedWhileNotListening(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sess.SetListening(false)
	for i := 0; i < 10; i++ {
		h.svc.ProcessAudio(ctx, h.sess, loudFrame())
	}

	// No utterance opens: no sink, no dialogue, no capture in progress.
	assert.Nil(t, h.sess.Sink())
	assert.Empty(t, h.sess.DialogueID())
	assert.False(t, h.sess.Capturer.Capturing())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.sender.sentences())
}

// listenStateSender records the session's listening flag at each delivery.
type listenStateSender struct {
	recordingSender
	listening func() bool

	stateMu sync.Mutex
	states  []bool
}

func (l *listenStateSender) Send(ctx context.Context, s *pipeline.Sentence) error {
	l.stateMu.Lock()
	l.states = append(l.states, l.listening())
	l.stateMu.Unlock()
	return l.recordingSender.Send(ctx, s)
}

func TestSendSingleSuspendsListening(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sender := &listenStateSender{}
	sess, err := h.svc.StartSession(ctx, "sess-2", "device-2", sender)
	require.NoError(t, err)
	t.Cleanup(func() { h.svc.CloseSession("sess-2") })
	sender.listening = sess.Listening

	h.svc.SendSingle(ctx, sess, "Time for your review!")

	require.Eventually(t, func() bool {
		return len(sender.sentences()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	got := sender.sentences()[0]
	assert.Equal(t, "Time for your review!", got.Text)
	assert.True(t, got.IsFirst)
	assert.True(t, got.IsLast)

	// Capture stays off while the message plays, so the device does not
	// hear its own playback as an utterance.
	sender.stateMu.Lock()
	for _, listening := range sender.states {
		assert.False(t, listening)
	}
	sender.stateMu.Unlock()

	// Listening resumes once delivery completes.
	require.Eventually(t, func() bool {
		return sess.Listening() && !sess.Processing()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWakeWordFiltering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.profiles.Save(ctx, &profile.DeviceProfile{
		DeviceID:  "device-2",
		WakeWords: []string{"hey murmur"},
	}))

	sender := &recordingSender{}
	sess, err := h.svc.StartSession(ctx, "sess-2", "device-2", sender)
	require.NoError(t, err)
	t.Cleanup(func() { h.svc.CloseSession("sess-2") })

	h.svc.HandleWakeWord(ctx, sess, "good morning")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sess.DialogueID())
	assert.Empty(t, sender.sentences())

	// Matching is a case-insensitive substring check.
	h.svc.HandleWakeWord(ctx, sess, "Hey Murmur, what's up")
	require.Eventually(t, func() bool {
		return len(sender.sentences()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, sess.DialogueID())
}

func TestAudioArtifactsWritten(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, WithAudioDir(dir))
	ctx := context.Background()

	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		return h.sess.Listening() && !h.sess.Processing()
	}, 2*time.Second, 5*time.Millisecond)

	dialogueID := h.sess.DialogueID()
	require.NotEmpty(t, dialogueID)

	userPath := h.svc.UserAudioPath(h.sess, dialogueID)
	require.NotEmpty(t, userPath)
	assert.Equal(t, filepath.Join(dir, "sess-1", dialogueID+"_user.wav"), userPath)
	info, err := os.Stat(userPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44))

	require.Eventually(t, func() bool {
		return h.svc.AssistantAudioPath(h.sess, dialogueID) != ""
	}, 2*time.Second, 5*time.Millisecond)
	_, err = os.Stat(h.svc.AssistantAudioPath(h.sess, dialogueID))
	require.NoError(t, err)
}

type recordingReview struct {
	mu      sync.Mutex
	handled []string
	consume bool
}

func (r *recordingReview) HandleUtterance(ctx context.Context, sess *session.Session, dialogueID, text string) (bool, error) {
	r.mu.Lock()
	r.handled = append(r.handled, text)
	r.mu.Unlock()
	return r.consume, nil
}

func TestReviewFlowConsumesUtterance(t *testing.T) {
	review := &recordingReview{consume: true}
	h := newHarness(t, WithReviewFlow(review))
	ctx := context.Background()

	h.speakUtterance(ctx)

	require.Eventually(t, func() bool {
		review.mu.Lock()
		defer review.mu.Unlock()
		return len(review.handled) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Consumed utterances never reach the producer.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.sender.sentences())
}

func TestClassifyIntent(t *testing.T) {
	learning, exitIntent := ClassifyIntent("我想复习单词")
	assert.True(t, learning)
	assert.False(t, exitIntent)

	// Exit wins when both patterns match.
	learning, exitIntent = ClassifyIntent("退出复习")
	assert.False(t, learning)
	assert.True(t, exitIntent)

	learning, exitIntent = ClassifyIntent("what time is it")
	assert.False(t, learning)
	assert.False(t, exitIntent)
}
