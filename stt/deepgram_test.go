package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeepgram runs a websocket endpoint that records the handshake,
// counts binary frames, and emits final transcripts on CloseStream.
type fakeDeepgram struct {
	t           *testing.T
	transcripts []string

	gotAuth  string
	gotQuery string
	frames   int
}

func (f *fakeDeepgram) handler(w http.ResponseWriter, r *http.Request) {
	f.gotAuth = r.Header.Get("Authorization")
	f.gotQuery = r.URL.RawQuery

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	require.NoError(f.t, err)
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			f.frames++
			continue
		}

		var ctl struct {
			Type string `json:"type"`
		}
		require.NoError(f.t, json.Unmarshal(data, &ctl))
		if ctl.Type != "CloseStream" {
			continue
		}

		for _, text := range f.transcripts {
			msg := deepgramMessage{Type: "Results", IsFinal: true}
			msg.Channel.Alternatives = []struct {
				Transcript string `json:"transcript"`
			}{{Transcript: text}}
			require.NoError(f.t, conn.WriteJSON(msg))
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return
	}
}

func TestDeepgramStreamTranscribe(t *testing.T) {
	fake := &fakeDeepgram{t: t, transcripts: []string{"hello", "world"}}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	svc := NewDeepgram("dg-key",
		WithDeepgramURL("ws"+strings.TrimPrefix(srv.URL, "http")))

	frames := make(chan []byte, 3)
	frames <- []byte{1, 2}
	frames <- []byte{3, 4}
	frames <- []byte{5, 6}
	close(frames)

	cfg := DefaultTranscriptionConfig()
	cfg.Language = "en"
	text, err := svc.StreamTranscribe(context.Background(), frames, cfg)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "Token dg-key", fake.gotAuth)
	assert.Contains(t, fake.gotQuery, "encoding=linear16")
	assert.Contains(t, fake.gotQuery, "sample_rate=16000")
	assert.Contains(t, fake.gotQuery, "language=en")
	assert.Equal(t, 3, fake.frames)
}

func TestDeepgramEmptyUtterance(t *testing.T) {
	fake := &fakeDeepgram{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	svc := NewDeepgram("dg-key",
		WithDeepgramURL("ws"+strings.TrimPrefix(srv.URL, "http")))

	frames := make(chan []byte)
	close(frames)

	text, err := svc.StreamTranscribe(context.Background(), frames, DefaultTranscriptionConfig())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDeepgramConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewDeepgram("bad-key",
		WithDeepgramURL("ws"+strings.TrimPrefix(srv.URL, "http")))

	frames := make(chan []byte)
	close(frames)

	_, err := svc.StreamTranscribe(context.Background(), frames, DefaultTranscriptionConfig())
	require.Error(t, err)

	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "deepgram", terr.Provider)
	assert.True(t, terr.Retryable)
}
