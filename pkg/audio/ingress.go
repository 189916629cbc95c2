// Package audio carries raw client audio from the transport to the
// recognition bridge as a bounded, backpressured chunk stream.
package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Push after the ingress has been closed.
var ErrClosed = errors.New("audio ingress closed")

// Chunk is one span of raw audio bytes with a monotonic sequence index.
// Ownership of Data transfers to the consumer on receive.
type Chunk struct {
	Seq  uint64
	Data []byte
}

// Ingress is a single-producer, single-consumer chunk queue. When the buffer
// is full Push blocks, propagating backpressure to the client transport
// instead of growing memory.
type Ingress struct {
	ch        chan Chunk
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	seq       atomic.Uint64
}

// NewIngress creates an ingress with the given buffer capacity in chunks.
func NewIngress(buffer int) *Ingress {
	if buffer <= 0 {
		buffer = 32
	}
	return &Ingress{
		ch:   make(chan Chunk, buffer),
		done: make(chan struct{}),
	}
}

// Push enqueues one chunk, blocking while the buffer is full. It returns
// ErrClosed after Close and the context error on cancellation.
func (i *Ingress) Push(ctx context.Context, data []byte) error {
	if i.closed.Load() {
		return ErrClosed
	}
	chunk := Chunk{Seq: i.seq.Add(1), Data: data}
	select {
	case i.ch <- chunk:
		return nil
	case <-i.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chunks returns the consumer side. The channel is closed by Close, which is
// the end-of-stream signal.
func (i *Ingress) Chunks() <-chan Chunk {
	return i.ch
}

// Close marks end-of-stream. It must be called from the producing goroutine
// (never concurrently with Push). Safe to call more than once; only the
// first call has effect.
func (i *Ingress) Close() {
	i.closeOnce.Do(func() {
		i.closed.Store(true)
		close(i.done)
		close(i.ch)
	})
}
