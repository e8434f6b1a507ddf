package dialogue

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/codec"
	"github.com/murmurlabs/voiceloop/intent"
	"github.com/murmurlabs/voiceloop/logger"
	metrics "github.com/murmurlabs/voiceloop/metrics/prometheus"
	"github.com/murmurlabs/voiceloop/pipeline"
	"github.com/murmurlabs/voiceloop/respond"
	"github.com/murmurlabs/voiceloop/session"
)

// turnAudio accumulates the synthesized PCM of one turn so the assistant
// audio artifact can be written in delivery order at turn end.
type turnAudio struct {
	pcm map[int32][]byte
}

// ProcessAudio handles one inbound audio frame for a session. Frames are
// dropped while the session is not listening or a turn is being produced.
func (s *Service) ProcessAudio(ctx context.Context, sess *session.Session, frame []byte) {
	sess.Touch()

	if !sess.Listening() {
		metrics.RecordFrame("dropped")
		return
	}

	result := sess.Capturer.Process(ctx, frame)
	switch result.Status {
	case audio.StatusError:
		metrics.RecordFrame("error")
		s.log.Debug("dropping undecodable frame", "session_id", sess.ID)

	case audio.StatusSpeechStart:
		metrics.RecordFrame("ok")
		if sess.Processing() {
			// Reply production is already in flight; barge-in is handled
			// by an explicit abort, not by opening a second turn.
			sess.Capturer.Reset()
			return
		}
		s.startVoiceTurn(ctx, sess)
		s.pushFrame(sess, result.Frame)

	case audio.StatusSpeechContinue:
		metrics.RecordFrame("ok")
		s.pushFrame(sess, result.Frame)

	case audio.StatusSpeechEnd:
		metrics.RecordFrame("ok")
		s.finishUtterance(sess)

	default:
		metrics.RecordFrame("ok")
	}
}

// startVoiceTurn opens a new turn triggered by detected speech and starts
// the streaming transcriber on the utterance's sink.
func (s *Service) startVoiceTurn(ctx context.Context, sess *session.Session) {
	dialogueID := uuid.NewString()
	sess.SetDialogueID(dialogueID)
	sink := sess.OpenSink()

	metrics.RecordUtterance("voice")
	s.log.InfoContext(logger.WithDialogueID(ctx, dialogueID), "utterance started",
		"session_id", sess.ID)

	go s.transcribe(ctx, sess, dialogueID, sink)
}

func (s *Service) pushFrame(sess *session.Session, frame []byte) {
	sink := sess.Sink()
	if sink == nil {
		return
	}
	if err := sink.Push(frame); err != nil {
		metrics.RecordFrame("dropped")
		s.log.Debug("frame not queued for transcription",
			"session_id", sess.ID,
			"error", err)
	}
}

// finishUtterance closes the utterance: the sink is ended so the
// transcriber finalizes, the user audio artifact is written, and audio
// processing pauses until the turn's reply has been delivered.
func (s *Service) finishUtterance(sess *session.Session) {
	dialogueID := sess.DialogueID()

	s.writeUserArtifact(sess, dialogueID)
	sess.Capturer.Reset()
	sess.SetListening(false)
	sess.CloseSink()
}

// transcribe runs the streaming transcriber for one utterance and hands
// the final text to the reply flow.
func (s *Service) transcribe(ctx context.Context, sess *session.Session, dialogueID string, sink *session.Sink) {
	cfg := s.sttConfig
	if lang := sess.StringAttr(AttrLanguage); lang != "" {
		cfg.Language = lang
	}

	start := time.Now()
	text, err := s.transcriber.StreamTranscribe(ctx, sink.Frames(), cfg)
	if err != nil {
		metrics.RecordTranscription(s.transcriber.Name(), "error", time.Since(start).Seconds())
		metrics.RecordTurn("error")
		s.log.Warn("transcription failed",
			"session_id", sess.ID,
			"dialogue_id", dialogueID,
			"provider", s.transcriber.Name(),
			"error", err)
		s.endTurnIdle(sess)
		return
	}
	metrics.RecordTranscription(s.transcriber.Name(), "success", time.Since(start).Seconds())
	logger.TranscriptionResult(s.transcriber.Name(), sess.ID, len(text), time.Since(start).Seconds(),
		"dialogue_id", dialogueID)

	if text == "" {
		s.log.Debug("empty transcript, resuming listening",
			"session_id", sess.ID,
			"dialogue_id", dialogueID)
		s.endTurnIdle(sess)
		return
	}

	if n, ok := sess.Queue.Sender().(TranscriptNotifier); ok {
		if err := n.NotifyTranscript(ctx, dialogueID, text); err != nil {
			s.log.Debug("transcript notification failed",
				"session_id", sess.ID,
				"error", err)
		}
	}

	s.respondTo(ctx, sess, dialogueID, text)
}

// HandleWakeWord opens a turn directly from a recognized wake phrase,
// bypassing capture and transcription. When the device profile configures
// wake words, detect events that match none of them are ignored.
func (s *Service) HandleWakeWord(ctx context.Context, sess *session.Session, text string) {
	if sess.Processing() {
		return
	}
	if !s.wakeWordAccepted(sess, text) {
		s.log.Debug("detect text matched no configured wake word",
			"session_id", sess.ID,
			"text", text)
		return
	}
	dialogueID := uuid.NewString()
	sess.SetDialogueID(dialogueID)
	sess.SetListening(false)

	metrics.RecordUtterance("wake_word")
	s.respondTo(ctx, sess, dialogueID, text)
}

// wakeWordAccepted reports whether a detect event may open a turn. With
// no configured wake words every detect is accepted.
func (s *Service) wakeWordAccepted(sess *session.Session, text string) bool {
	v, ok := sess.Attr(AttrWakeWords)
	if !ok {
		return true
	}
	words, ok := v.([]string)
	if !ok || len(words) == 0 {
		return true
	}

	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// HandleText opens a turn from a text message, for devices that transcribe
// locally or send typed input.
func (s *Service) HandleText(ctx context.Context, sess *session.Session, text string) {
	if sess.Processing() || text == "" {
		return
	}
	dialogueID := uuid.NewString()
	sess.SetDialogueID(dialogueID)
	sess.SetListening(false)

	metrics.RecordUtterance("text")
	s.respondTo(ctx, sess, dialogueID, text)
}

// respondTo runs the reply flow for a transcribed utterance: review mode
// first, then the streaming producer feeding the sentence queue.
func (s *Service) respondTo(ctx context.Context, sess *session.Session, dialogueID, text string) {
	sess.SetProcessing(true)

	if s.review != nil {
		handled, err := s.review.HandleUtterance(ctx, sess, dialogueID, text)
		if err != nil {
			s.log.Warn("review flow failed, falling back to normal reply",
				"session_id", sess.ID,
				"dialogue_id", dialogueID,
				"error", err)
		} else if handled {
			return
		}
	}

	req := respond.Request{
		SessionID:    sess.ID,
		DialogueID:   dialogueID,
		Text:         text,
		SystemPrompt: sess.StringAttr(AttrSystemPrompt),
		Language:     sess.StringAttr(AttrLanguage),
	}

	err := s.producer.StreamSentences(ctx, req, func(sentence string, isFirst, isLast bool) {
		s.enqueueSentence(ctx, sess, dialogueID, sentence, isFirst, isLast)
	})
	if err != nil {
		metrics.RecordTurn("error")
		s.log.Warn("reply production failed",
			"session_id", sess.ID,
			"dialogue_id", dialogueID,
			"producer", s.producer.Name(),
			"error", err)
		sess.Queue.Clear()
		s.endTurnIdle(sess)
	}
}

// SendSingle delivers one standalone spoken message outside the reply
// flow, for prompts the server initiates itself. The session stops
// listening until the message has been delivered so its own playback is
// not captured as an utterance.
func (s *Service) SendSingle(ctx context.Context, sess *session.Session, text string) {
	dialogueID := uuid.NewString()
	sess.SetDialogueID(dialogueID)
	sess.SetListening(false)
	sess.SetProcessing(true)

	s.enqueueSentence(ctx, sess, dialogueID, text, true, true)
}

// enqueueSentence registers a sentence for ordered delivery and kicks off
// its synthesis. Empty closing markers skip synthesis entirely.
func (s *Service) enqueueSentence(ctx context.Context, sess *session.Session, dialogueID, text string, isFirst, isLast bool) {
	sent := sess.Queue.Add(ctx, dialogueID, text, isFirst, isLast)
	if text == "" {
		sess.Queue.Complete(ctx, sent, nil)
		return
	}
	go s.synthesize(ctx, sess, dialogueID, sent)
}

// synthesize produces audio for one sentence and completes it in the
// queue. Failures still complete the sentence so delivery order survives.
func (s *Service) synthesize(ctx context.Context, sess *session.Session, dialogueID string, sent *pipeline.Sentence) {
	cfg := s.ttsConfig
	if voice := sess.StringAttr(AttrVoiceID); voice != "" {
		cfg.Voice = voice
	}
	if lang := sess.StringAttr(AttrLanguage); lang != "" {
		cfg.Language = lang
	}

	start := time.Now()
	pcm, err := s.synthesizer.Synthesize(ctx, sent.Text, cfg)
	if err != nil {
		metrics.RecordSynthesis(s.synthesizer.Name(), "error", time.Since(start).Seconds())
		logger.SynthesisFailed(s.synthesizer.Name(), sess.ID, int(sent.Seq), err,
			"dialogue_id", dialogueID)
		sess.Queue.Fail(ctx, sent)
		return
	}
	metrics.RecordSynthesis(s.synthesizer.Name(), "success", time.Since(start).Seconds())
	logger.SynthesisResult(s.synthesizer.Name(), sess.ID, int(sent.Seq), time.Since(start).Seconds(),
		"dialogue_id", dialogueID)

	s.stashTurnPCM(dialogueID, sent.Seq, pcm)

	enc, err := s.newEncoder()
	if err != nil {
		s.log.Warn("frame encoder unavailable",
			"dialogue_id", dialogueID,
			"error", err)
		sess.Queue.Fail(ctx, sent)
		return
	}
	frames, err := enc.Encode(pcm)
	if err != nil {
		sess.Queue.Fail(ctx, sent)
		return
	}
	tail, err := enc.Flush()
	if err != nil {
		sess.Queue.Fail(ctx, sent)
		return
	}
	frames = append(frames, tail...)

	sess.Queue.Complete(ctx, sent, frames)
}

// Abort cancels the in-flight turn: pending sentences are dropped,
// in-flight playback is stopped, the utterance sink is closed and the
// session resumes listening.
func (s *Service) Abort(ctx context.Context, sess *session.Session) {
	dialogueID := sess.DialogueID()

	sess.Queue.Clear()
	if stopper, ok := sess.Queue.Sender().(PlaybackStopper); ok {
		if err := stopper.StopPlayback(ctx); err != nil {
			s.log.Debug("playback stop failed",
				"session_id", sess.ID,
				"error", err)
		}
	}
	sess.CloseSink()
	sess.Capturer.Reset()
	s.dropTurnPCM(dialogueID)

	sess.SetProcessing(false)
	sess.SetListening(true)
	metrics.RecordTurn("aborted")

	s.log.Info("turn aborted",
		"session_id", sess.ID,
		"dialogue_id", dialogueID)
}

// endTurnIdle resets the session to listening without a delivered reply.
func (s *Service) endTurnIdle(sess *session.Session) {
	sess.SetProcessing(false)
	sess.SetListening(true)
}

func (s *Service) stashTurnPCM(dialogueID string, seq int32, pcm []byte) {
	if s.audioDir == "" {
		return
	}
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()

	ta, ok := s.turns[dialogueID]
	if !ok {
		ta = &turnAudio{pcm: make(map[int32][]byte)}
		s.turns[dialogueID] = ta
	}
	ta.pcm[seq] = pcm
}

func (s *Service) dropTurnPCM(dialogueID string) {
	s.turnsMu.Lock()
	delete(s.turns, dialogueID)
	s.turnsMu.Unlock()
}

// writeUserArtifact saves the captured utterance PCM as a WAV file and
// records its path on the session.
func (s *Service) writeUserArtifact(sess *session.Session, dialogueID string) {
	if s.audioDir == "" || dialogueID == "" {
		return
	}
	pcm := sess.Capturer.RawAudio()
	if len(pcm) == 0 {
		return
	}

	path := filepath.Join(s.audioDir, sess.ID, dialogueID+"_user.wav")
	if err := codec.WriteWAVFile(path, pcm, s.sttConfig.SampleRate, s.sttConfig.Channels); err != nil {
		s.log.Warn("failed to save user audio",
			"session_id", sess.ID,
			"dialogue_id", dialogueID,
			"error", err)
		return
	}
	sess.SetAttr(attrUserAudioPrefix+dialogueID, path)
}

// writeAssistantArtifact assembles the turn's synthesized PCM in sequence
// order and saves it as a WAV file.
func (s *Service) writeAssistantArtifact(sess *session.Session, dialogueID string) {
	if s.audioDir == "" || dialogueID == "" {
		return
	}

	s.turnsMu.Lock()
	ta, ok := s.turns[dialogueID]
	delete(s.turns, dialogueID)
	s.turnsMu.Unlock()
	if !ok || len(ta.pcm) == 0 {
		return
	}

	seqs := make([]int32, 0, len(ta.pcm))
	for seq := range ta.pcm {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var merged []byte
	for _, seq := range seqs {
		merged = append(merged, ta.pcm[seq]...)
	}

	sampleRate := s.ttsConfig.SampleRate
	if sampleRate == 0 {
		sampleRate = codec.DefaultSampleRate
	}

	path := filepath.Join(s.audioDir, sess.ID, dialogueID+"_assistant.wav")
	if err := codec.WriteWAVFile(path, merged, sampleRate, codec.DefaultChannels); err != nil {
		s.log.Warn("failed to save assistant audio",
			"session_id", sess.ID,
			"dialogue_id", dialogueID,
			"error", err)
		return
	}
	sess.SetAttr(attrAssistantAudioPrefix+dialogueID, path)
}

// UserAudioPath returns the saved user audio artifact for a turn.
func (s *Service) UserAudioPath(sess *session.Session, dialogueID string) string {
	return sess.StringAttr(attrUserAudioPrefix + dialogueID)
}

// AssistantAudioPath returns the saved assistant audio artifact for a turn.
func (s *Service) AssistantAudioPath(sess *session.Session, dialogueID string) string {
	return sess.StringAttr(attrAssistantAudioPrefix + dialogueID)
}

// ClassifyIntent exposes the utterance intent checks used by review
// flows: exit wins over learning when both match.
func ClassifyIntent(text string) (learning, exit bool) {
	exit = intent.IsExit(text)
	learning = !exit && intent.IsLearning(text)
	return learning, exit
}
