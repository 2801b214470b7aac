package conduit

import (
	"context"
	"errors"
	"testing"
)

type fakeHandler struct {
	sendErr    error
	ackErr     error
	setupErr   error
	setupCalls int
	sendCalls  int
}

func (f *fakeHandler) SendReply(ctx context.Context, response string, destination Destination, meta ChannelMeta) error {
	f.sendCalls++
	return f.sendErr
}

func (f *fakeHandler) Acknowledge(ctx context.Context, destination Destination, meta ChannelMeta) error {
	return f.ackErr
}

func (f *fakeHandler) Setup(ctx context.Context) error {
	f.setupCalls++
	return f.setupErr
}

func TestChannelRegistryGetRoundTrips(t *testing.T) {
	r := NewChannelRegistry()
	h := &fakeHandler{}
	r.Register("telegram", h)

	got, ok := r.Get("telegram")
	if !ok {
		t.Fatal("expected telegram to be registered")
	}
	if got != h {
		t.Error("expected Get to return the registered handler")
	}

	if _, ok := r.Get("discord"); ok {
		t.Error("expected an unregistered channel to miss")
	}
}

type bareHandler struct{}

func (bareHandler) SendReply(ctx context.Context, response string, destination Destination, meta ChannelMeta) error {
	return nil
}
func (bareHandler) Acknowledge(ctx context.Context, destination Destination, meta ChannelMeta) error {
	return nil
}

func TestChannelRegistrySetupCallsOnlyChannelSetupImplementers(t *testing.T) {
	r := NewChannelRegistry()
	withSetup := &fakeHandler{}
	r.Register("telegram", withSetup)
	r.Register("bare", bareHandler{})

	if err := r.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if withSetup.setupCalls != 1 {
		t.Errorf("expected Setup called once, got %d", withSetup.setupCalls)
	}
}

func TestChannelRegistrySetupPropagatesError(t *testing.T) {
	r := NewChannelRegistry()
	r.Register("telegram", &fakeHandler{setupErr: errors.New("boom")})

	if err := r.Setup(context.Background()); err == nil {
		t.Error("expected Setup to propagate a handler's error")
	}
}

type fakePoller struct {
	fakeHandler
	ch chan MessageReceivedEvent
}

func (f *fakePoller) Poll(ctx context.Context) (<-chan MessageReceivedEvent, error) {
	return f.ch, nil
}

func TestChannelRegistryPollAllCollectsOnlyPollers(t *testing.T) {
	r := NewChannelRegistry()
	r.Register("bare", bareHandler{})
	poller := &fakePoller{ch: make(chan MessageReceivedEvent, 1)}
	r.Register("telegram", poller)

	streams, err := r.PollAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected exactly one poller's stream, got %d", len(streams))
	}

	poller.ch <- MessageReceivedEvent{Message: "hi"}
	close(poller.ch)
	got := <-streams[0]
	if got.Message != "hi" {
		t.Errorf("expected the polled event to pass through, got %q", got.Message)
	}
}
