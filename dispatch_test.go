package conduit

import (
	"context"
	"testing"
	"time"

	"github.com/nevindra/conduit/internal/durable"
)

// stubProvider replies with a fixed final-answer text and no tool calls,
// so an AgentLoop.Run backed by it always finishes in one iteration.
type stubProvider struct {
	reply string
}

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return ChatResponse{Content: s.reply, StopReason: StopReasonStop}, nil
}

func newTestLoop(t *testing.T, reply string) (*AgentLoop, *durable.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := durable.Open(dir + "/durable.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	mem := NewMemoryStore(dir)
	sessions := NewSessionStore(dir, nil)
	gateway := NewGateway(stubProvider{reply: reply}, "stub-model")
	assembler := NewContextAssembler("conduit", mem, sessions, nil)
	compactor := NewCompactor(gateway, sessions)
	pruner := NewPruner()
	tools := NewToolRegistry()

	loop := NewAgentLoop(gateway, tools, assembler, compactor, pruner, store, nil)
	return loop, store
}

func TestDispatcherHandleMessageSendsReply(t *testing.T) {
	loop, _ := newTestLoop(t, "hello there")
	channels := NewChannelRegistry()
	handler := &fakeHandler{}
	channels.Register("telegram", handler)
	controller := durable.NewController()

	d := NewDispatcher(loop, channels, controller)
	event := MessageReceivedEvent{
		Message:     "hi",
		SessionKey:  SessionKey("telegram-1"),
		Channel:     "telegram",
		MessageID:   "m1",
		Destination: Destination{ChatID: "1"},
	}

	d.HandleMessage(context.Background(), event)

	if handler.sendCalls != 1 {
		t.Errorf("expected SendReply called once, got %d", handler.sendCalls)
	}
}

func TestDispatcherSendReplyRetriesThenGivesUp(t *testing.T) {
	loop, _ := newTestLoop(t, "hello")
	channels := NewChannelRegistry()
	handler := &fakeHandler{sendErr: errFake}
	channels.Register("telegram", handler)
	controller := durable.NewController()

	d := NewDispatcher(loop, channels, controller)
	reply := ReplyReadyEvent{Response: "hi", Channel: "telegram", Destination: Destination{ChatID: "1"}}

	start := time.Now()
	d.SendReply(context.Background(), reply)
	elapsed := time.Since(start)

	// 1 initial attempt + 3 retries + GlobalFailureHandler's own send = 5 calls total.
	if handler.sendCalls != sendReplyMaxRetries+2 {
		t.Errorf("expected %d send attempts (initial + retries + failure-handler apology), got %d", sendReplyMaxRetries+2, handler.sendCalls)
	}
	if elapsed < time.Second {
		t.Errorf("expected the linear backoff between retries to take at least 1s, took %s", elapsed)
	}
}

func TestDispatcherGlobalFailureHandlerSwallowsItsOwnFailure(t *testing.T) {
	channels := NewChannelRegistry()
	handler := &fakeHandler{sendErr: errFake}
	channels.Register("telegram", handler)
	controller := durable.NewController()
	loop, _ := newTestLoop(t, "hi")

	d := NewDispatcher(loop, channels, controller)

	// Must not panic even though the apology send itself fails.
	d.GlobalFailureHandler(context.Background(), MessageReceivedEvent{Channel: "telegram", Destination: Destination{ChatID: "1"}}, errFake)
}

var errFake = errFakeType{}

type errFakeType struct{}

func (errFakeType) Error() string { return "fake send failure" }
