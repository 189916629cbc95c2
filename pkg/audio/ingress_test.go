package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPushAssignsMonotonicSequence(t *testing.T) {
	ing := NewIngress(4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := ing.Push(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("push error: %v", err)
		}
	}
	ing.Close()

	var last uint64
	for chunk := range ing.Chunks() {
		if chunk.Seq <= last {
			t.Fatalf("sequence not monotonic: %d after %d", chunk.Seq, last)
		}
		last = chunk.Seq
	}
	if last != 3 {
		t.Fatalf("expected 3 chunks, got %d", last)
	}
}

func TestPushBlocksWhenBufferFull(t *testing.T) {
	ing := NewIngress(1)
	ctx := context.Background()
	if err := ing.Push(ctx, []byte("a")); err != nil {
		t.Fatalf("push error: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- ing.Push(ctx, []byte("b"))
	}()

	select {
	case err := <-blocked:
		t.Fatalf("push should have blocked, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	<-ing.Chunks()
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("push error after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("push did not unblock after drain")
	}
}

func TestPushCancellable(t *testing.T) {
	ing := NewIngress(1)
	if err := ing.Push(context.Background(), []byte("a")); err != nil {
		t.Fatalf("push error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ing.Push(ctx, []byte("b")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCloseIsIdempotentAndEndsStream(t *testing.T) {
	ing := NewIngress(2)
	ing.Close()
	ing.Close()
	if _, ok := <-ing.Chunks(); ok {
		t.Fatalf("expected closed chunk channel")
	}
	if err := ing.Push(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
