package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/audio"
	"github.com/curalink/voicebridge/pkg/completion"
	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/events"
	"github.com/curalink/voicebridge/pkg/logging"
)

// EventSink receives the ordered outbound event stream for one session.
// Implementations must tolerate calls after the client is gone (drop, do not
// block).
type EventSink interface {
	Status(message string)
	Partial(text string)
	Final(text string, confidence float64)
	Content(text string)
	Complete()
	Error(code, message string)
}

type ControllerConfig struct {
	ForwardInterim bool
	// GracePeriod bounds how long Close waits for the event loop to
	// unwind before forcing teardown.
	GracePeriod time.Duration
}

// Controller owns one session's lifecycle. It consumes the recognition
// bridge one event at a time and is the only writer of the session's
// conversation context.
type Controller struct {
	cfg     ControllerConfig
	sess    *Session
	sm      *stateMachine
	bridge  *asr.Bridge
	trigger *completion.Trigger
	store   conversation.Store
	convo   *conversation.Context
	sink    EventSink
	logger  *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	persisted int
}

func NewController(sess *Session, bridge *asr.Bridge, trigger *completion.Trigger, store conversation.Store, sink EventSink, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		sess:    sess,
		sm:      newStateMachine(),
		bridge:  bridge,
		trigger: trigger,
		store:   store,
		sink:    sink,
		logger: logging.NewSessionLogger(
			logging.NewComponentLogger(logger, "session_controller"),
			sess.ID, sess.TraceID),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Session returns the session record.
func (c *Controller) Session() *Session { return c.sess }

// Status returns the session's current status.
func (c *Controller) Status() Status { return c.sm.Current() }

// OnStateChange registers a status listener.
func (c *Controller) OnStateChange(listener StateListener) {
	c.sm.AddListener(listener)
}

// Fail records an unrecoverable fault raised outside the event loop, such
// as a client protocol violation, so the session ends errored instead of
// draining to Inactive with no last error.
func (c *Controller) Fail(reason errorsx.ReasonCode, message string) {
	c.sess.SetLastError(message)
	if err := c.sm.Transition(StatusError, string(reason)); err != nil {
		c.logger.Warn("fault_transition_skipped",
			slog.String("session_id", c.sess.ID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
	}
}

// Run executes the session event loop until the recognition bridge
// terminates or the session is closed. It blocks; callers run it on the
// session's own goroutine.
func (c *Controller) Run(ctx context.Context, source <-chan audio.Chunk) error {
	c.started.Store(true)
	defer close(c.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := c.sm.Transition(StatusConnecting, "client connected"); err != nil {
		return err
	}
	c.loadHistory(runCtx)

	evs, err := c.bridge.Start(runCtx, source)
	if err != nil {
		reason := errorsx.Reason(err)
		c.sess.SetLastError(errorsx.UserMessage(reason))
		_ = c.sm.Transition(StatusError, string(reason))
		c.sink.Error(string(reason), errorsx.UserMessage(reason))
		return err
	}

	for ev := range evs {
		switch ev := ev.(type) {
		case events.Status:
			if c.sm.Current() == StatusConnecting {
				_ = c.sm.Transition(StatusActive, "recognizer ready")
			}
			c.sink.Status(ev.Message)
		case events.Partial:
			if c.cfg.ForwardInterim {
				c.sink.Partial(ev.Text)
			}
		case events.Final:
			c.sink.Final(ev.Text, ev.Confidence)
			c.handleFinal(runCtx, ev.Text)
		case events.VendorError:
			c.sess.SetLastError(ev.Message)
			_ = c.sm.Transition(StatusError, ev.Code)
			c.sink.Error(ev.Code, ev.Message)
		case events.Terminated:
			c.logger.Info("recognizer_terminated")
		}
	}

	if current := c.sm.Current(); current != StatusError && current != StatusInactive {
		_ = c.sm.Transition(StatusInactive, "stream ended")
	}
	c.persist()
	return nil
}

// handleFinal appends the user turn, invokes the completion trigger, and
// drains its tokens inline so all side effects stay strictly sequential.
func (c *Controller) handleFinal(ctx context.Context, text string) {
	prior := c.convo.Snapshot()
	c.convo.Append(conversation.RoleUser, text)

	tokens, err := c.trigger.Invoke(ctx, c.sess.ID, prior, text)
	if err != nil {
		reason := errorsx.Reason(err)
		if reason == errorsx.ReasonSessionBusy {
			c.logger.Warn("completion_rejected_busy")
			c.sink.Status("assistant is still responding")
			return
		}
		c.sink.Error(string(reason), errorsx.UserMessage(reason))
		return
	}

	var reply strings.Builder
	for tok := range tokens {
		switch tok := tok.(type) {
		case events.Content:
			reply.WriteString(tok.Text)
			c.sink.Content(tok.Text)
		case events.Stop:
			// The persisted context and what the client saw are the
			// same accumulated text.
			c.convo.Append(conversation.RoleAssistant, reply.String())
			c.sink.Complete()
		case events.Error:
			c.sess.SetLastError(tok.Message)
			c.sink.Error(tok.Code, tok.Message)
		}
	}
}

// Close tears the session down: cancels the event loop, stops the bridge and
// any in-flight completion, and waits up to the grace period. Idempotent;
// a second call is a no-op with the same end state.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.bridge.Stop()
		if c.started.Load() {
			select {
			case <-c.done:
			case <-time.After(c.cfg.GracePeriod):
				c.logger.Error("session_teardown_forced",
					slog.Duration("grace_period", c.cfg.GracePeriod))
			}
		}
		if c.sm.Current() != StatusInactive {
			_ = c.sm.Transition(StatusInactive, "session closed")
		}
	})
}

func (c *Controller) loadHistory(ctx context.Context) {
	prior, err := c.store.Load(ctx, c.sess.ID)
	if err != nil {
		// Resume is best effort; a fresh context is better than refusing
		// the session.
		c.logger.Warn("conversation_load_failed",
			slog.String("reason", string(errorsx.ReasonStoreRead)),
			slog.String("error", err.Error()))
		prior = nil
	}
	c.convo = conversation.NewContext(prior)
	c.persisted = len(prior)
}

func (c *Controller) persist() {
	turns := c.convo.Since(c.persisted)
	if len(turns) == 0 {
		return
	}
	// The session context is already cancelled by the time we persist.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.store.Append(ctx, c.sess.ID, turns); err != nil {
		c.logger.Error("conversation_persist_failed",
			slog.String("reason", string(errorsx.ReasonStoreWrite)),
			slog.Int("turns", len(turns)),
			slog.String("error", err.Error()))
		return
	}
	c.persisted += len(turns)
}
