package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/curalink/voicebridge/pkg/audio"
	"github.com/curalink/voicebridge/pkg/auth"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/logging"
	"github.com/curalink/voicebridge/pkg/session"
)

type Config struct {
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	AllowAnyOrigin  bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	AuthTimeout     time.Duration `mapstructure:"auth_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	AudioBuffer     int           `mapstructure:"audio_buffer"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/stream"
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.AudioBuffer <= 0 {
		c.AudioBuffer = 32
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// ControllerFactory builds the per-session pipeline (recognizer, bridge,
// completion trigger, controller) for an authenticated session. The sink
// is the session's websocket client.
type ControllerFactory func(sess *session.Session, sink session.EventSink) (*session.Controller, error)

// Server is the client-facing websocket endpoint. One connection carries
// exactly one session: an auth frame, then audio frames, then close.
type Server struct {
	cfg      Config
	auth     auth.Authorizer
	factory  ControllerFactory
	registry *session.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	draining atomic.Bool
}

func NewServer(cfg Config, authorizer auth.Authorizer, factory ControllerFactory, registry *session.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg.withDefaults(),
		auth:     authorizer,
		factory:  factory,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "ws_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

func (s *Server) Name() string { return "ws" }

func (s *Server) Addr() string { return s.cfg.Addr }

func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server_error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop refuses new connections and drains live sessions, each getting
// the session grace period.
func (s *Server) Stop() error {
	s.draining.Store(true)
	if s.server != nil {
		_ = s.server.Close()
	}
	return s.registry.Drain()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	cl := newClient(conn, s.cfg.SendBuffer, s.logger)
	defer cl.close()

	principal, authFrame, ok := s.authenticate(r.Context(), conn, cl)
	if !ok {
		return
	}

	sessionID := authFrame.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	traceID := uuid.NewString()
	logger := logging.NewSessionLogger(s.logger, sessionID, traceID)

	sess := session.NewSession(sessionID, traceID, principal)
	ctrl, err := s.factory(sess, cl)
	if err != nil {
		reason := errorsx.Reason(err)
		cl.enqueue(OutboundFrame{Type: outboundError, Code: string(reason), Message: errorsx.UserMessage(reason)})
		logger.Error("session_setup_failed", slog.String("error", err.Error()))
		return
	}
	if err := s.registry.Add(ctrl); err != nil {
		cl.enqueue(OutboundFrame{
			Type:    outboundError,
			Code:    string(errorsx.ReasonSessionBusy),
			Message: errorsx.UserMessage(errorsx.ReasonSessionBusy),
		})
		logger.Warn("session_already_attached")
		return
	}
	defer s.registry.Remove(sessionID)

	cl.enqueue(OutboundFrame{Type: outboundStatus, SessionID: sessionID, Message: "authenticated"})
	logger.Info("session_attached", slog.String("principal", principal))

	ingress := audio.NewIngress(s.cfg.AudioBuffer)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(context.Background(), ingress.Chunks()); err != nil {
			logger.Error("session_run_ended", slog.String("error", err.Error()))
		}
	}()
	defer ctrl.Close()

	// Push must not block forever once the controller has stopped
	// consuming chunks.
	pushCtx, cancelPush := context.WithCancel(context.Background())
	defer cancelPush()
	go func() {
		<-runDone
		cancelPush()
	}()

	s.readLoop(pushCtx, conn, cl, ctrl, ingress, logger)
	ingress.Close()
}

// authenticate enforces the auth-first handshake: the first frame must
// arrive within the auth timeout and must carry a valid token.
func (s *Server) authenticate(ctx context.Context, conn *websocket.Conn, cl *client) (string, InboundFrame, bool) {
	var frame InboundFrame
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", frame, false
	}
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Type != inboundAuth {
		cl.enqueue(OutboundFrame{
			Type:    outboundError,
			Code:    string(errorsx.ReasonProtocolError),
			Message: "expected an auth frame",
		})
		return "", frame, false
	}
	principal, err := s.auth.Authorize(ctx, frame.Token)
	if err != nil {
		cl.enqueue(OutboundFrame{
			Type:    outboundError,
			Code:    string(errorsx.ReasonAuthFailed),
			Message: errorsx.UserMessage(errorsx.ReasonAuthFailed),
		})
		s.logger.Warn("auth_rejected", slog.String("remote", conn.RemoteAddr().String()))
		return "", frame, false
	}
	_ = conn.SetReadDeadline(time.Time{})
	return principal, frame, true
}

// readLoop is the single producer for the session's ingress. It returns
// when the client sends a close frame, the connection drops, or a
// protocol violation ends the session.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, cl *client, ctrl *session.Controller, ingress *audio.Ingress, logger *slog.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Info("client_disconnected")
			return
		}
		var frame InboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.protocolError(cl, ctrl, logger, "malformed frame")
			return
		}
		switch frame.Type {
		case inboundAudio:
			data, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				s.protocolError(cl, ctrl, logger, "audio payload is not valid base64")
				return
			}
			if err := ingress.Push(ctx, data); err != nil {
				logger.Info("audio_push_stopped", slog.String("error", err.Error()))
				return
			}
		case inboundClose:
			logger.Info("client_close_requested")
			return
		case inboundAuth:
			s.protocolError(cl, ctrl, logger, "session is already authenticated")
			return
		default:
			s.protocolError(cl, ctrl, logger, "unknown frame type")
			return
		}
	}
}

// protocolError ends the session errored: the client sees a final error
// frame and the session record keeps the fault as its last error.
func (s *Server) protocolError(cl *client, ctrl *session.Controller, logger *slog.Logger, message string) {
	ctrl.Fail(errorsx.ReasonProtocolError, message)
	cl.enqueue(OutboundFrame{
		Type:    outboundError,
		Code:    string(errorsx.ReasonProtocolError),
		Message: message,
	})
	logger.Warn("protocol_error", slog.String("detail", message))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}
