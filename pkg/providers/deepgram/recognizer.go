package deepgram

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/events"
	"github.com/curalink/voicebridge/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	Interim        bool
	UtteranceEndMS int
	SessionID      string
	TraceID        string
}

// Recognizer adapts the Deepgram live transcription client to the
// asr.Recognizer contract. Vendor callbacks arrive on the SDK's own
// goroutines; each callback hands off through the bounded event channel and
// never blocks past session cancellation.
type Recognizer struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan events.TranscriptEvent
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	logger     *slog.Logger

	closeOnce sync.Once
	// Error code observed during connect, consulted when Connect reports
	// failure without a usable error value.
	connectErrCode atomic.Value
}

func New(cfg Config, logger *slog.Logger) *Recognizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		cfg:    cfg,
		out:    make(chan events.TranscriptEvent, 256),
		logger: logging.NewComponentLogger(logger, "deepgram_recognizer"),
	}
}

func (r *Recognizer) Name() string { return "deepgram" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return errorsx.New(errorsx.ReasonAuthFailed, "deepgram api key missing")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.pipeReader, r.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: r.cfg.Interim,
		SmartFormat:    true,
	}
	if r.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = strconv.Itoa(r.cfg.UtteranceEndMS)
	}

	r.logger.Info("initializing deepgram connection",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model),
		slog.Int("sample_rate", r.cfg.SampleRate))

	cb := &callback{parent: r}
	dgClient, err := client.NewWSUsingCallback(r.ctx, r.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		r.logger.Error("deepgram_client_create_error",
			slog.String("session_id", r.cfg.SessionID),
			slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonConnectFailed)
	}
	r.dgClient = dgClient

	if connected := r.dgClient.Connect(); !connected {
		reason := errorsx.ReasonConnectFailed
		if code, _ := r.connectErrCode.Load().(string); isAuthCode(code) {
			reason = errorsx.ReasonAuthFailed
		}
		r.logger.Error("deepgram_connect_failed",
			slog.String("session_id", r.cfg.SessionID),
			slog.String("reason", string(reason)))
		return errorsx.New(reason, "deepgram connection failed")
	}

	r.logger.Info("deepgram_connected",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model))

	go func() {
		if err := r.dgClient.Stream(r.pipeReader); err != nil && r.ctx.Err() == nil {
			r.logger.Error("deepgram_stream_error",
				slog.String("session_id", r.cfg.SessionID),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (r *Recognizer) SendAudio(data []byte) error {
	if r.pipeWriter == nil {
		return errorsx.New(errorsx.ReasonStreamFailed, "recognizer not started")
	}
	_, err := r.pipeWriter.Write(data)
	return err
}

func (r *Recognizer) Events() <-chan events.TranscriptEvent { return r.out }

func (r *Recognizer) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("closing deepgram connection",
			slog.String("session_id", r.cfg.SessionID))
		if r.cancel != nil {
			r.cancel()
		}
		if r.pipeWriter != nil {
			_ = r.pipeWriter.Close()
		}
		if r.dgClient != nil {
			r.dgClient.Stop()
		}
	})
	return nil
}

// emit hands an event to the bridge. Transcript and error events block until
// accepted or the session is cancelled; droppable events fall through when
// the buffer is full so the SDK callback goroutine is never held up.
func (r *Recognizer) emit(ev events.TranscriptEvent, droppable bool) {
	if r.ctx == nil || r.ctx.Err() != nil {
		return
	}
	if droppable {
		select {
		case r.out <- ev:
		default:
			r.logger.Warn("deepgram_event_dropped",
				slog.String("session_id", r.cfg.SessionID),
				slog.String("kind", string(ev.TranscriptKind())))
		}
		return
	}
	select {
	case r.out <- ev:
	case <-r.ctx.Done():
	}
}

func isAuthCode(code string) bool {
	code = strings.ToLower(code)
	return strings.Contains(code, "401") || strings.Contains(code, "auth")
}

// --- Callback implementation ---

type callback struct {
	parent *Recognizer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("session_id", c.parent.cfg.SessionID))
	c.parent.emit(events.Status{Message: "recognizer connected"}, true)
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	if mr.IsFinal || mr.SpeechFinal {
		c.parent.emit(events.Final{Text: alt.Transcript, Confidence: alt.Confidence}, false)
		return nil
	}
	c.parent.emit(events.Partial{Text: alt.Transcript}, false)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.logger.Debug("deepgram_metadata_received",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.emit(events.Status{Message: "speech started"}, true)
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.emit(events.Status{Message: "utterance end"}, true)
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("session_id", c.parent.cfg.SessionID))
	c.parent.emit(events.Terminated{}, false)
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.connectErrCode.Store(er.ErrCode)
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))

	code := errorsx.ReasonStreamFailed
	if isAuthCode(er.ErrCode) {
		code = errorsx.ReasonAuthFailed
	}
	c.parent.emit(events.VendorError{
		Code:    string(code),
		Message: errorsx.UserMessage(code),
	}, false)
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

var _ asr.Recognizer = (*Recognizer)(nil)
