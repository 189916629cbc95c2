package mock

import (
	"context"
	"errors"
	"time"

	"github.com/curalink/voicebridge/pkg/llm"
)

type LLMConfig struct {
	// StreamChunks are emitted in order as Content deltas. When empty a
	// single default chunk is emitted.
	StreamChunks []string
	// StartErr makes Stream fail before any delta.
	StartErr error
	// FailAfter injects a mid-stream error after that many chunks
	// (0 disables).
	FailAfter int
	StreamErr error
	// ChunkDelay paces emission so cancellation paths are exercisable.
	ChunkDelay time.Duration
}

// LLMAdapter is a scripted llm.Adapter for local development and tests.
type LLMAdapter struct {
	cfg LLMConfig
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if len(cfg.StreamChunks) == 0 {
		cfg.StreamChunks = []string{"mock response"}
	}
	if cfg.FailAfter > 0 && cfg.StreamErr == nil {
		cfg.StreamErr = errors.New("mock stream failure")
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock" }

func (a *LLMAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	if a.cfg.StartErr != nil {
		return nil, a.cfg.StartErr
	}
	out := make(chan llm.Delta, len(a.cfg.StreamChunks)+1)
	go func() {
		defer close(out)
		for i, chunk := range a.cfg.StreamChunks {
			if a.cfg.FailAfter > 0 && i >= a.cfg.FailAfter {
				out <- llm.Delta{Err: a.cfg.StreamErr}
				return
			}
			if a.cfg.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(a.cfg.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- llm.Delta{Text: chunk}:
			}
		}
		if a.cfg.FailAfter > 0 && a.cfg.FailAfter >= len(a.cfg.StreamChunks) {
			out <- llm.Delta{Err: a.cfg.StreamErr}
		}
	}()
	return out, nil
}

var _ llm.Adapter = (*LLMAdapter)(nil)
