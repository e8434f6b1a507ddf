package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/murmurlabs/voiceloop/codec"
	"github.com/murmurlabs/voiceloop/dialogue"
	"github.com/murmurlabs/voiceloop/logger"
	"github.com/murmurlabs/voiceloop/session"
)

const (
	defaultReadLimit         = 1 << 20
	defaultReadHeaderTimeout = 10 * time.Second
	defaultPongWait          = 90 * time.Second

	// control message rate limit per connection; audio frames are exempt.
	controlRate  = rate.Limit(20)
	controlBurst = 40
)

// Server accepts device websocket connections and routes their messages
// into the dialogue service.
type Server struct {
	addr     string
	path     string
	svc      *dialogue.Service
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	started bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPath sets the websocket endpoint path. Default is "/voice".
func WithPath(path string) ServerOption {
	return func(s *Server) { s.path = path }
}

// NewServer creates a websocket server on addr backed by svc.
func NewServer(addr string, svc *dialogue.Service, opts ...ServerOption) *Server {
	s := &Server{
		addr: addr,
		path: "/voice",
		svc:  svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins accepting connections. Blocks until the server stops;
// returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleConnection)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("websocket server listening", "addr", s.addr, "path", s.path)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil && s.started {
		s.started = false
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(defaultReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})

	s.serveConn(r.Context(), conn, r.Header.Get("Device-Id"))
}

// serveConn runs the read loop for one connection. The first control
// message must be a hello; everything after is audio frames and turn
// control.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn, headerDeviceID string) {
	sessionID := uuid.NewString()
	ctx = logger.WithSessionID(ctx, sessionID)

	sender := NewSender(conn, sessionID, codec.DefaultFrameMs*time.Millisecond)
	defer sender.Close()

	limiter := rate.NewLimiter(controlRate, controlBurst)

	var sess *session.Session
	defer func() {
		if sess != nil {
			s.svc.CloseSession(sessionID)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnContext(ctx, "connection read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(defaultPongWait))

		if msgType == websocket.BinaryMessage {
			if sess == nil {
				continue
			}
			s.svc.ProcessAudio(ctx, sess, data)
			continue
		}

		if !limiter.Allow() {
			logger.WarnContext(ctx, "control message rate exceeded")
			_ = sender.writeJSON(errorMessage{Type: TypeError, Message: "rate limit exceeded"})
			continue
		}

		sess = s.handleControl(ctx, conn, sender, sess, sessionID, headerDeviceID, data)
		if sess == nil && s.sessionGone(sessionID) {
			return
		}
	}
}

func (s *Server) sessionGone(sessionID string) bool {
	_, ok := s.svc.Session(sessionID)
	return !ok
}

// handleControl dispatches one JSON control message. Returns the current
// session, which is created by the hello handshake.
func (s *Server) handleControl(
	ctx context.Context,
	conn *websocket.Conn,
	sender *Sender,
	sess *session.Session,
	sessionID, headerDeviceID string,
	data []byte,
) *session.Session {
	msg, err := parseInbound(data)
	if err != nil {
		logger.WarnContext(ctx, "unparseable control message", "error", err)
		_ = sender.writeJSON(errorMessage{Type: TypeError, Message: "invalid message"})
		return sess
	}

	switch msg.Type {
	case TypeHello:
		if sess != nil {
			return sess
		}
		deviceID := msg.DeviceID
		if deviceID == "" {
			deviceID = headerDeviceID
		}
		newSess, err := s.svc.StartSession(ctx, sessionID, deviceID, sender)
		if err != nil {
			logger.WarnContext(ctx, "session start failed", "error", err)
			_ = sender.writeJSON(errorMessage{Type: TypeError, Message: "session start failed"})
			_ = conn.Close()
			return nil
		}
		_ = sender.writeJSON(helloReply{
			Type:      TypeHello,
			Transport: "websocket",
			SessionID: sessionID,
			AudioParams: AudioParams{
				Format:        "opus",
				SampleRate:    codec.DefaultSampleRate,
				Channels:      codec.DefaultChannels,
				FrameDuration: codec.DefaultFrameMs,
			},
		})
		return newSess

	case TypeListen:
		if sess == nil {
			return nil
		}
		switch msg.State {
		case ListenStateStart:
			sess.SetListening(true)
		case ListenStateStop:
			sess.SetListening(false)
			sess.CloseSink()
		case ListenStateDetect:
			s.svc.HandleWakeWord(ctx, sess, msg.Text)
		}
		return sess

	case TypeText:
		if sess == nil {
			return nil
		}
		s.svc.HandleText(ctx, sess, msg.Text)
		return sess

	case TypeAbort:
		if sess == nil {
			return nil
		}
		s.svc.Abort(ctx, sess)
		return sess

	default:
		logger.DebugContext(ctx, "ignoring unknown message type", "type", msg.Type)
		return sess
	}
}
