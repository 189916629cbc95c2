package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/audio"
	"github.com/curalink/voicebridge/pkg/completion"
	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/errorsx"
	mockprov "github.com/curalink/voicebridge/pkg/providers/mock"
)

type sinkEvent struct {
	kind    string
	text    string
	code    string
	message string
}

type captureSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *captureSink) record(ev sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) Status(message string) { s.record(sinkEvent{kind: "status", message: message}) }
func (s *captureSink) Partial(text string)   { s.record(sinkEvent{kind: "partial", text: text}) }
func (s *captureSink) Final(text string, confidence float64) {
	s.record(sinkEvent{kind: "final", text: text})
}
func (s *captureSink) Content(text string) { s.record(sinkEvent{kind: "content", text: text}) }
func (s *captureSink) Complete()           { s.record(sinkEvent{kind: "complete"}) }
func (s *captureSink) Error(code, message string) {
	s.record(sinkEvent{kind: "error", code: code, message: message})
}

func (s *captureSink) snapshot() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) kinds() []string {
	var out []string
	for _, ev := range s.snapshot() {
		out = append(out, ev.kind)
	}
	return out
}

type testHarness struct {
	ctrl    *Controller
	sink    *captureSink
	store   *conversation.MemoryStore
	ingress *audio.Ingress
	runDone chan error
}

func newHarness(t *testing.T, recCfg mockprov.RecognizerConfig, llmCfg mockprov.LLMConfig, ctrlCfg ControllerConfig) *testHarness {
	t.Helper()
	sess := NewSession("sess-1", "trace-1", "clinician-7")
	bridge := asr.NewBridge(mockprov.NewRecognizer(recCfg), asr.BridgeConfig{SessionID: sess.ID}, nil)
	trigger := completion.NewTrigger(mockprov.NewLLMAdapter(llmCfg), completion.Config{}, nil)
	store := conversation.NewMemoryStore()
	sink := &captureSink{}
	ctrl := NewController(sess, bridge, trigger, store, sink, ctrlCfg, nil)
	return &testHarness{
		ctrl:    ctrl,
		sink:    sink,
		store:   store,
		ingress: audio.NewIngress(8),
		runDone: make(chan error, 1),
	}
}

func (h *testHarness) run(ctx context.Context) {
	go func() {
		h.runDone <- h.ctrl.Run(ctx, h.ingress.Chunks())
	}()
}

func (h *testHarness) waitRun(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.runDone:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("controller run did not finish")
		return nil
	}
}

func TestControllerScenarioFullUtterance(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{Transcript: "I have chest pain.", EmitInterim: true},
		mockprov.LLMConfig{StreamChunks: []string{"Chest pain can be ", "serious."}},
		ControllerConfig{ForwardInterim: true},
	)
	ctx := context.Background()
	h.run(ctx)

	if err := h.ingress.Push(ctx, []byte("pcm audio")); err != nil {
		t.Fatalf("push error: %v", err)
	}
	h.ingress.Close()
	if err := h.waitRun(t); err != nil {
		t.Fatalf("run error: %v", err)
	}

	kinds := h.sink.kinds()
	want := []string{"status", "partial", "final", "content", "content", "complete"}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %v", i, want[i], kinds)
		}
	}

	evs := h.sink.snapshot()
	if evs[2].text != "I have chest pain" {
		t.Fatalf("unexpected final transcript: %q", evs[2].text)
	}
	var reply strings.Builder
	reply.WriteString(evs[3].text)
	reply.WriteString(evs[4].text)
	if reply.String() != "Chest pain can be serious." {
		t.Fatalf("unexpected assistant reply: %q", reply.String())
	}
	if h.ctrl.Status() != StatusInactive {
		t.Fatalf("expected INACTIVE after clean end, got %s", h.ctrl.Status())
	}
}

func TestControllerPersistsBothTurnsAtSessionEnd(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{Transcript: "My head hurts."},
		mockprov.LLMConfig{StreamChunks: []string{"How long has it hurt?"}},
		ControllerConfig{},
	)
	ctx := context.Background()
	h.run(ctx)
	_ = h.ingress.Push(ctx, []byte("audio"))
	h.ingress.Close()
	_ = h.waitRun(t)

	turns, err := h.store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected user + assistant turns, got %d", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[0].Content != "My head hurts" {
		t.Fatalf("unexpected user turn: %+v", turns[0])
	}
	if turns[1].Role != conversation.RoleAssistant || turns[1].Content != "How long has it hurt?" {
		t.Fatalf("unexpected assistant turn: %+v", turns[1])
	}
}

func TestControllerResumesPersistedConversation(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{Transcript: "Still hurting."},
		mockprov.LLMConfig{StreamChunks: []string{"Noted."}},
		ControllerConfig{},
	)
	ctx := context.Background()
	seed := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "My head hurts"},
		{Role: conversation.RoleAssistant, Content: "How long?"},
	}
	if err := h.store.Append(ctx, "sess-1", seed); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	h.run(ctx)
	_ = h.ingress.Push(ctx, []byte("audio"))
	h.ingress.Close()
	_ = h.waitRun(t)

	turns, _ := h.store.Load(ctx, "sess-1")
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns after resume, got %d", len(turns))
	}
	if turns[2].Content != "Still hurting" {
		t.Fatalf("unexpected resumed turn: %+v", turns[2])
	}
}

func TestControllerVendorAuthFailureNeverGoesActive(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{StartErrReason: errorsx.ReasonAuthFailed},
		mockprov.LLMConfig{},
		ControllerConfig{},
	)
	var seen []Status
	var mu sync.Mutex
	h.ctrl.OnStateChange(listenerFunc(func(ev StateChange) {
		mu.Lock()
		seen = append(seen, ev.To)
		mu.Unlock()
	}))

	ctx := context.Background()
	h.run(ctx)
	defer h.ingress.Close()
	if err := h.waitRun(t); err == nil {
		t.Fatalf("expected run error on vendor auth failure")
	}

	kinds := h.sink.kinds()
	if len(kinds) != 1 || kinds[0] != "error" {
		t.Fatalf("expected a single error event, got %v", kinds)
	}
	if code := h.sink.snapshot()[0].code; code != string(errorsx.ReasonAuthFailed) {
		t.Fatalf("expected auth_failed, got %s", code)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, st := range seen {
		if st == StatusActive {
			t.Fatalf("session must never report ACTIVE on connect failure")
		}
	}
	if h.ctrl.Status() != StatusError {
		t.Fatalf("expected ERROR, got %s", h.ctrl.Status())
	}
	if h.ctrl.Session().LastError() == "" {
		t.Fatalf("expected last error recorded on the session")
	}
}

type listenerFunc func(StateChange)

func (f listenerFunc) OnStateChange(ev StateChange) { f(ev) }

func TestControllerCloseCancelsInFlightCompletion(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{Transcript: "Tell me everything."},
		mockprov.LLMConfig{
			StreamChunks: []string{"a", "b", "c", "d", "e", "f", "g", "h"},
			ChunkDelay:   100 * time.Millisecond,
		},
		ControllerConfig{GracePeriod: 2 * time.Second},
	)
	ctx := context.Background()
	h.run(ctx)
	if err := h.ingress.Push(ctx, []byte("audio")); err != nil {
		t.Fatalf("push error: %v", err)
	}

	// Wait until the completion is streaming.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("completion never started streaming")
		}
		if kindsContain(h.sink.kinds(), "content") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	h.ctrl.Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("close exceeded grace period: %v", elapsed)
	}
	_ = h.waitRun(t)

	before := len(h.sink.snapshot())
	time.Sleep(300 * time.Millisecond)
	after := len(h.sink.snapshot())
	if before != after {
		t.Fatalf("events emitted after close: %d -> %d", before, after)
	}
	for _, kind := range h.sink.kinds() {
		if kind == "complete" {
			t.Fatalf("cancelled completion must not report complete")
		}
	}
	if h.ctrl.Status() != StatusInactive {
		t.Fatalf("expected INACTIVE after close, got %s", h.ctrl.Status())
	}
}

func TestControllerCloseIsIdempotent(t *testing.T) {
	h := newHarness(t,
		mockprov.RecognizerConfig{Transcript: "Hello."},
		mockprov.LLMConfig{StreamChunks: []string{"Hi."}},
		ControllerConfig{GracePeriod: time.Second},
	)
	ctx := context.Background()
	h.run(ctx)
	_ = h.ingress.Push(ctx, []byte("audio"))
	h.ingress.Close()
	_ = h.waitRun(t)

	h.ctrl.Close()
	first := h.ctrl.Status()
	h.ctrl.Close()
	if h.ctrl.Status() != first || first != StatusInactive {
		t.Fatalf("double close changed state: %s then %s", first, h.ctrl.Status())
	}
}

func kindsContain(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
