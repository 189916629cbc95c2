// Package completion drives streaming completion calls and republishes
// vendor output as a bounded token sequence with a hard response-size
// ceiling.
package completion

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/events"
	"github.com/curalink/voicebridge/pkg/llm"
	"github.com/curalink/voicebridge/pkg/logging"
)

const (
	// DefaultMaxResponseBytes caps accumulated assistant text per response.
	DefaultMaxResponseBytes = 32 << 10
	defaultTokenBuffer      = 64
)

type Config struct {
	System           string
	MaxResponseBytes int
	TokenBuffer      int
}

// Trigger invokes the completion vendor for finalized user transcripts.
// At most one invocation is in flight at a time; a second Invoke is rejected
// synchronously rather than queued.
type Trigger struct {
	adapter  llm.Adapter
	cfg      Config
	logger   *slog.Logger
	inflight atomic.Bool
}

func NewTrigger(adapter llm.Adapter, cfg Config, logger *slog.Logger) *Trigger {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.TokenBuffer <= 0 {
		cfg.TokenBuffer = defaultTokenBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		adapter: adapter,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "completion_trigger"),
	}
}

// Invoke opens a streaming completion for prior turns plus newText and
// returns the token sequence. The sequence ends with exactly one of Stop or
// Error; after an Error no Stop follows. Cancellation ends the sequence
// silently. A call while another is in flight fails with session_busy.
func (t *Trigger) Invoke(ctx context.Context, sessionID string, prior []conversation.Turn, newText string) (<-chan events.CompletionToken, error) {
	if !t.inflight.CompareAndSwap(false, true) {
		return nil, errorsx.New(errorsx.ReasonSessionBusy, "completion already in flight")
	}

	turns := make([]conversation.Turn, 0, len(prior)+1)
	turns = append(turns, prior...)
	turns = append(turns, conversation.Turn{
		Role:      conversation.RoleUser,
		Content:   newText,
		Timestamp: time.Now(),
	})

	out := make(chan events.CompletionToken, t.cfg.TokenBuffer)
	go func() {
		defer t.inflight.Store(false)
		defer close(out)
		t.run(ctx, sessionID, llm.Request{System: t.cfg.System, Turns: turns}, out)
	}()
	return out, nil
}

// InFlight reports whether an invocation is currently active.
func (t *Trigger) InFlight() bool { return t.inflight.Load() }

func (t *Trigger) run(ctx context.Context, sessionID string, req llm.Request, out chan<- events.CompletionToken) {
	deltas, err := t.adapter.Stream(ctx, req)
	if err != nil {
		reason := errorsx.Reason(err)
		if reason == errorsx.ReasonUnknown {
			reason = errorsx.ReasonConnectFailed
		}
		t.logger.Error("completion_stream_open_failed",
			slog.String("session_id", sessionID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
		t.send(ctx, out, events.Error{Code: string(reason), Message: errorsx.UserMessage(reason)})
		return
	}

	var total int
	for {
		select {
		case <-ctx.Done():
			// Cancellation is a normal lifecycle event, not a failure.
			return
		case delta, ok := <-deltas:
			if !ok {
				// A stream cut short by cancellation is not a normal
				// completion; emit nothing.
				if ctx.Err() != nil {
					return
				}
				t.send(ctx, out, events.Stop{})
				return
			}
			if delta.Err != nil {
				reason := errorsx.Reason(delta.Err)
				if reason == errorsx.ReasonUnknown {
					reason = errorsx.ReasonStreamFailed
				}
				t.logger.Error("completion_stream_failed",
					slog.String("session_id", sessionID),
					slog.String("reason", string(reason)),
					slog.String("error", delta.Err.Error()))
				t.send(ctx, out, events.Error{Code: string(reason), Message: errorsx.UserMessage(reason)})
				return
			}
			if total+len(delta.Text) > t.cfg.MaxResponseBytes {
				t.logger.Warn("completion_response_truncated",
					slog.String("session_id", sessionID),
					slog.Int("accumulated_bytes", total),
					slog.Int("ceiling", t.cfg.MaxResponseBytes))
				t.send(ctx, out, events.Error{
					Code:    string(errorsx.ReasonResponseTooLarge),
					Message: errorsx.UserMessage(errorsx.ReasonResponseTooLarge),
				})
				return
			}
			total += len(delta.Text)
			if !t.send(ctx, out, events.Content{Text: delta.Text}) {
				return
			}
		}
	}
}

func (t *Trigger) send(ctx context.Context, out chan<- events.CompletionToken, tok events.CompletionToken) bool {
	select {
	case out <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}
