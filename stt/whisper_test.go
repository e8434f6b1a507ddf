package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer server.Close()

	svc := NewWhisper("test-key", WithWhisperBaseURL(server.URL))
	cfg := DefaultTranscriptionConfig()
	cfg.Language = "en"

	text, err := svc.Transcribe(context.Background(), make([]byte, 3200), cfg)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestWhisperTranscribeEmptyAudio(t *testing.T) {
	svc := NewWhisper("test-key")
	_, err := svc.Transcribe(context.Background(), nil, DefaultTranscriptionConfig())
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestWhisperTranscribeRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded","code":"rate_limit"}}`))
	}))
	defer server.Close()

	svc := NewWhisper("test-key", WithWhisperBaseURL(server.URL))
	_, err := svc.Transcribe(context.Background(), make([]byte, 3200), DefaultTranscriptionConfig())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Retryable)
	assert.Equal(t, "rate_limit", terr.Code)
}

func TestWhisperTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewWhisper("test-key", WithWhisperBaseURL(server.URL))
	_, err := svc.Transcribe(context.Background(), make([]byte, 3200), DefaultTranscriptionConfig())

	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Retryable)
}

type fakeService struct {
	got  []byte
	text string
	err  error
}

func (f *fakeService) Name() string { return "fake" }

func (f *fakeService) Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error) {
	f.got = audio
	return f.text, f.err
}

func TestAdaptAccumulatesFrames(t *testing.T) {
	fake := &fakeService{text: "final transcript"}
	streaming := Adapt(fake)

	frames := make(chan []byte, 3)
	frames <- []byte{0x01}
	frames <- []byte{0x02}
	frames <- []byte{0x03}
	close(frames)

	text, err := streaming.StreamTranscribe(context.Background(), frames, DefaultTranscriptionConfig())
	require.NoError(t, err)
	assert.Equal(t, "final transcript", text)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, fake.got)
	assert.Equal(t, "fake", streaming.Name())
}

func TestAdaptCanceledContext(t *testing.T) {
	streaming := Adapt(&fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := make(chan []byte)
	_, err := streaming.StreamTranscribe(ctx, frames, DefaultTranscriptionConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTranscriptionErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := NewTranscriptionError("deepgram", "500", "server error", cause, true)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "deepgram transcription error [500]: server error", err.Error())

	same := NewTranscriptionError("deepgram", "500", "different message", nil, false)
	assert.ErrorIs(t, err, same)

	other := NewTranscriptionError("whisper", "500", "server error", nil, false)
	assert.NotErrorIs(t, err, other)
}
