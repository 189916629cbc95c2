package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/events"
)

type RecognizerConfig struct {
	// Transcript is emitted as one Final per sentence once audio arrives.
	Transcript string
	// EmitInterim emits a Partial with the first half of each sentence
	// before its Final.
	EmitInterim bool
	Confidence  float64
	// StartErrReason makes Start fail with the given reason code.
	StartErrReason errorsx.ReasonCode
	// FinalizeAfter is how much audio (bytes) triggers the scripted
	// transcript. Zero finalizes on the first chunk.
	FinalizeAfter int
}

// Recognizer is a scripted asr.Recognizer for local development and tests.
type Recognizer struct {
	cfg RecognizerConfig
	out chan events.TranscriptEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	received int
	emitted  bool
	closed   bool
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript."
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.95
	}
	return &Recognizer{
		cfg: cfg,
		out: make(chan events.TranscriptEvent, 32),
	}
}

func (r *Recognizer) Name() string { return "mock" }

func (r *Recognizer) Start(ctx context.Context) error {
	if r.cfg.StartErrReason != "" {
		return errorsx.New(r.cfg.StartErrReason, "mock recognizer start failure")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.emit(events.Status{Message: "recognizer connected"})
	return nil
}

func (r *Recognizer) SendAudio(data []byte) error {
	r.mu.Lock()
	r.received += len(data)
	shouldEmit := !r.emitted && r.received >= r.cfg.FinalizeAfter
	if shouldEmit {
		r.emitted = true
	}
	r.mu.Unlock()

	if shouldEmit {
		for _, sentence := range splitSentences(r.cfg.Transcript) {
			if r.cfg.EmitInterim {
				r.emit(events.Partial{Text: sentence[:(len(sentence)+1)/2]})
			}
			r.emit(events.Final{Text: sentence, Confidence: r.cfg.Confidence})
		}
	}
	return nil
}

func (r *Recognizer) Events() <-chan events.TranscriptEvent { return r.out }

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cancel != nil {
		// Terminated must land before cancellation stops emission.
		r.emitLocked(events.Terminated{})
		r.cancel()
	}
	return nil
}

func (r *Recognizer) emit(ev events.TranscriptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(ev)
}

func (r *Recognizer) emitLocked(ev events.TranscriptEvent) {
	if r.ctx == nil || r.ctx.Err() != nil {
		return
	}
	select {
	case r.out <- ev:
	case <-r.ctx.Done():
	case <-time.After(time.Second):
	}
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return out
}

var _ asr.Recognizer = (*Recognizer)(nil)
