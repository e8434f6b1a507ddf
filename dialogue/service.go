// Package dialogue orchestrates spoken turns: utterance capture,
// transcription, reply production, sentence synthesis and ordered
// delivery, per device session.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/murmurlabs/voiceloop/audio"
	"github.com/murmurlabs/voiceloop/codec"
	"github.com/murmurlabs/voiceloop/logger"
	metrics "github.com/murmurlabs/voiceloop/metrics/prometheus"
	"github.com/murmurlabs/voiceloop/pipeline"
	"github.com/murmurlabs/voiceloop/profile"
	"github.com/murmurlabs/voiceloop/respond"
	"github.com/murmurlabs/voiceloop/session"
	"github.com/murmurlabs/voiceloop/stt"
	"github.com/murmurlabs/voiceloop/tts"
)

// Session attribute keys. Audio artifact paths are keyed per turn.
const (
	AttrVoiceID      = "voiceID"
	AttrLanguage     = "language"
	AttrSystemPrompt = "systemPrompt"
	AttrWakeWords    = "wakeWords"

	attrUserAudioPrefix      = "userAudioPath_"
	attrAssistantAudioPrefix = "assistantAudioPath_"
)

// FrameEncoder converts synthesized PCM into wire frames. Implemented by
// codec.OpusEncoder.
type FrameEncoder interface {
	Encode(pcm []byte) ([][]byte, error)
	Flush() ([][]byte, error)
}

// TranscriptNotifier is an optional capability of a session's sender:
// implementations receive the recognized utterance text so the device
// can display it.
type TranscriptNotifier interface {
	NotifyTranscript(ctx context.Context, dialogueID, text string) error
}

// PlaybackStopper is an optional capability of a session's sender:
// implementations cut short in-flight audio when a turn is aborted.
type PlaybackStopper interface {
	StopPlayback(ctx context.Context) error
}

// ReviewFlow lets a guided review conversation take over utterances
// before the normal reply flow. HandleUtterance returns true when the
// utterance was consumed by review mode.
type ReviewFlow interface {
	HandleUtterance(ctx context.Context, sess *session.Session, dialogueID, text string) (bool, error)
}

// Service drives the dialogue loop for all sessions.
type Service struct {
	registry    *session.Registry
	transcriber stt.StreamingService
	producer    respond.Producer
	synthesizer tts.Service
	profiles    profile.Store
	review      ReviewFlow

	sttConfig stt.TranscriptionConfig
	ttsConfig tts.SynthesisConfig
	vadParams audio.Params
	audioDir  string
	log       *slog.Logger

	newEncoder func() (FrameEncoder, error)
	newDecoder func() (audio.FrameDecoder, error)

	turnsMu sync.Mutex
	turns   map[string]*turnAudio
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithReviewFlow installs the review-mode hook.
func WithReviewFlow(r ReviewFlow) ServiceOption {
	return func(s *Service) { s.review = r }
}

// WithAudioDir sets where per-turn audio artifacts are written. Empty
// disables artifact saving.
func WithAudioDir(dir string) ServiceOption {
	return func(s *Service) { s.audioDir = dir }
}

// WithSTTConfig overrides the transcription config.
func WithSTTConfig(cfg stt.TranscriptionConfig) ServiceOption {
	return func(s *Service) { s.sttConfig = cfg }
}

// WithTTSConfig overrides the synthesis config.
func WithTTSConfig(cfg tts.SynthesisConfig) ServiceOption {
	return func(s *Service) { s.ttsConfig = cfg }
}

// WithVADParams overrides the voice detection parameters.
func WithVADParams(p audio.Params) ServiceOption {
	return func(s *Service) { s.vadParams = p }
}

// WithFrameEncoderFactory overrides how wire frames are produced from PCM.
func WithFrameEncoderFactory(fn func() (FrameEncoder, error)) ServiceOption {
	return func(s *Service) { s.newEncoder = fn }
}

// WithFrameDecoderFactory overrides how inbound frames are decoded to PCM.
func WithFrameDecoderFactory(fn func() (audio.FrameDecoder, error)) ServiceOption {
	return func(s *Service) { s.newDecoder = fn }
}

// WithServiceLogger overrides the service logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService creates the dialogue service.
func NewService(
	registry *session.Registry,
	transcriber stt.StreamingService,
	producer respond.Producer,
	synthesizer tts.Service,
	profiles profile.Store,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		registry:    registry,
		transcriber: transcriber,
		producer:    producer,
		synthesizer: synthesizer,
		profiles:    profiles,
		sttConfig:   stt.DefaultTranscriptionConfig(),
		ttsConfig:   tts.DefaultSynthesisConfig(),
		vadParams:   audio.DefaultParams(),
		log:         logger.DefaultLogger,
		turns:       make(map[string]*turnAudio),
	}
	s.newEncoder = func() (FrameEncoder, error) {
		return codec.NewOpusEncoder(codec.DefaultSampleRate, codec.DefaultChannels, codec.DefaultFrameMs)
	}
	s.newDecoder = func() (audio.FrameDecoder, error) {
		return codec.NewOpusDecoder(codec.DefaultSampleRate, codec.DefaultChannels)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates, registers and returns the session for a newly
// connected device. The sender is the connection's delivery path.
func (s *Service) StartSession(ctx context.Context, id, deviceID string, sender pipeline.Sender) (*session.Session, error) {
	analyzer, err := audio.NewRMSAnalyzer(s.vadParams)
	if err != nil {
		return nil, err
	}
	decoder, err := s.newDecoder()
	if err != nil {
		return nil, err
	}

	queue := pipeline.NewQueue(sender,
		pipeline.WithTurnComplete(s.turnCompleteFunc(id)),
		pipeline.WithLogger(s.log))

	sess := session.New(id, deviceID, queue, audio.NewCapturer(analyzer, decoder))
	s.applyProfile(ctx, sess)
	sess.SetListening(true)

	s.registry.Put(sess)
	metrics.RecordSessionStart()

	s.log.InfoContext(logger.WithSessionID(ctx, id), "session started",
		"device_id", deviceID)
	return sess, nil
}

// CloseSession tears down and unregisters a session. Idempotent.
func (s *Service) CloseSession(id string) {
	if _, ok := s.registry.Get(id); !ok {
		return
	}
	s.registry.Remove(id)
	metrics.RecordSessionEnd()
	s.log.Info("session closed", "session_id", id)
}

// Session returns a registered session.
func (s *Service) Session(id string) (*session.Session, bool) {
	return s.registry.Get(id)
}

// applyProfile copies device profile settings into session attributes.
// A missing profile leaves the defaults in place.
func (s *Service) applyProfile(ctx context.Context, sess *session.Session) {
	if s.profiles == nil {
		return
	}
	p, err := s.profiles.Load(ctx, sess.DeviceID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			s.log.Warn("failed to load device profile",
				"device_id", sess.DeviceID,
				"error", err)
		}
		return
	}
	if p.VoiceID != "" {
		sess.SetAttr(AttrVoiceID, p.VoiceID)
	}
	if p.Language != "" {
		sess.SetAttr(AttrLanguage, p.Language)
	}
	if p.SystemPrompt != "" {
		sess.SetAttr(AttrSystemPrompt, p.SystemPrompt)
	}
	if len(p.WakeWords) > 0 {
		sess.SetAttr(AttrWakeWords, p.WakeWords)
	}
}

// turnCompleteFunc returns the queue callback restoring the session to
// listening once a turn's last sentence has been delivered.
func (s *Service) turnCompleteFunc(sessionID string) pipeline.TurnCompleteFunc {
	return func(dialogueID string) {
		sess, ok := s.registry.Get(sessionID)
		if !ok {
			return
		}
		s.writeAssistantArtifact(sess, dialogueID)
		sess.SetProcessing(false)
		sess.SetListening(true)
		metrics.RecordTurn("completed")

		s.log.Debug("turn completed",
			"session_id", sessionID,
			"dialogue_id", dialogueID)
	}
}
