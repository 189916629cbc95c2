package asr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/curalink/voicebridge/pkg/audio"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/events"
	"github.com/curalink/voicebridge/pkg/logging"
)

// ErrAlreadyStarted is returned when Start is called twice; a bridge's event
// sequence is not restartable.
var ErrAlreadyStarted = errors.New("recognition bridge already started")

// ErrStopped is returned when Start is called on a bridge that was already
// stopped; Stop consumes the bridge for good.
var ErrStopped = errors.New("recognition bridge already stopped")

type BridgeConfig struct {
	SessionID   string
	TraceID     string
	EventBuffer int
}

// Bridge feeds client audio into a Recognizer and republishes the
// recognizer's events as a single ordered channel. The channel is bounded;
// transcript and error events are never dropped, status events are dropped
// under overflow rather than blocking the vendor side.
type Bridge struct {
	rec    Recognizer
	cfg    BridgeConfig
	out    chan events.TranscriptEvent
	cancel context.CancelFunc
	logger *slog.Logger

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

func NewBridge(rec Recognizer, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		rec:    rec,
		cfg:    cfg,
		out:    make(chan events.TranscriptEvent, cfg.EventBuffer),
		logger: logging.NewComponentLogger(logger, "recognition_bridge"),
	}
}

// Start connects the recognizer and begins pumping. The returned channel
// delivers events in vendor arrival order and terminates with Terminated
// (or is closed after an unrecoverable VendorError). Start can be called
// at most once.
func (b *Bridge) Start(ctx context.Context, source <-chan audio.Chunk) (<-chan events.TranscriptEvent, error) {
	if b.stopped.Load() {
		return nil, ErrStopped
	}
	if !b.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, b.cancel = context.WithCancel(ctx)

	if err := b.rec.Start(ctx); err != nil {
		b.cancel()
		b.logger.Error("recognizer_start_failed",
			slog.String("session_id", b.cfg.SessionID),
			slog.String("recognizer", b.rec.Name()),
			slog.String("error", err.Error()))
		return nil, errorsx.Wrap(err, errorsx.ReasonConnectFailed)
	}

	go b.feed(ctx, source)
	go b.pump(ctx)
	return b.out, nil
}

// Stop cancels feeding and pumping and signals the vendor client to
// terminate. Safe to call more than once and before Start.
func (b *Bridge) Stop() {
	b.stopped.Store(true)
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		_ = b.rec.Close()
	})
}

// feed moves audio chunks into the vendor client at vendor speed. The
// bounded source channel is what caps memory; a slow vendor backs pressure
// up to the client transport.
func (b *Bridge) feed(ctx context.Context, source <-chan audio.Chunk) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-source:
			if !ok {
				// Client finished the audio stream; let the vendor
				// flush and close, which surfaces Terminated.
				_ = b.rec.Close()
				return
			}
			if err := b.rec.SendAudio(chunk.Data); err != nil {
				if ctx.Err() == nil {
					b.logger.Error("recognizer_send_failed",
						slog.String("session_id", b.cfg.SessionID),
						slog.Uint64("seq", chunk.Seq),
						slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

// pump republishes recognizer events on the bridge channel, preserving
// arrival order. It closes the channel exactly once; no event follows
// Terminated.
func (b *Bridge) pump(ctx context.Context) {
	defer close(b.out)
	for {
		select {
		case <-ctx.Done():
			b.emitTerminated()
			return
		case ev, ok := <-b.rec.Events():
			if !ok {
				b.emitTerminated()
				return
			}
			switch ev.(type) {
			case events.Status:
				select {
				case b.out <- ev:
				default:
					b.logger.Warn("status_event_dropped",
						slog.String("session_id", b.cfg.SessionID))
				}
			case events.Terminated:
				b.forward(ctx, ev)
				return
			case events.VendorError:
				b.forward(ctx, ev)
				b.emitTerminated()
				return
			default:
				b.forward(ctx, ev)
			}
		}
	}
}

func (b *Bridge) forward(ctx context.Context, ev events.TranscriptEvent) {
	select {
	case b.out <- ev:
	case <-ctx.Done():
	}
}

func (b *Bridge) emitTerminated() {
	// Best effort: the channel close right after is the authoritative
	// end-of-sequence signal.
	select {
	case b.out <- events.Terminated{}:
	default:
	}
}
