// Package llm defines the streaming completion vendor surface.
package llm

import (
	"context"

	"github.com/curalink/voicebridge/pkg/conversation"
)

// Request is one streaming completion call: the system prompt plus the
// ordered conversation turns, ending with the user's newest message.
type Request struct {
	System string
	Turns  []conversation.Turn
}

// Delta is one unit of streamed output. Err is set on a mid-stream vendor
// fault; no further deltas follow an errored one.
type Delta struct {
	Text string
	Err  error
}

// Adapter drives a streaming completion call against one vendor. Stream
// returns an error only when the call cannot be established; mid-stream
// faults arrive as a Delta with Err set. The returned channel is closed when
// the vendor stream ends for any reason.
type Adapter interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan Delta, error)
}
