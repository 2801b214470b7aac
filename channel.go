package conduit

import (
	"context"
	"fmt"
)

// ChannelHandler is the small, closed capability set a channel adapter
// implements (§6): sending a formatted reply, giving the user a best-effort
// receipt signal, and (optionally) registering itself with the ingress
// platform. One concrete implementation exists per channel (Telegram,
// etc.) — represented as an interface rather than a tagged variant since
// channels accrete over time and each gets its own formatting/transport
// concerns.
type ChannelHandler interface {
	// SendReply formats response for the channel, splits it if it exceeds
	// the channel's message-size limit, and delivers it to destination. A
	// formatting-parse failure falls back to plain text rather than
	// failing the send outright. Callers (the reply dispatcher) retry on
	// error up to 3 times.
	SendReply(ctx context.Context, response string, destination Destination, meta ChannelMeta) error

	// Acknowledge sends a best-effort receipt signal (typing indicator,
	// reaction, …). Implementations may return a failure; the dispatcher
	// logs and swallows it, and never retries or surfaces an Acknowledge
	// error.
	Acknowledge(ctx context.Context, destination Destination, meta ChannelMeta) error
}

// ChannelSetup is implemented by channels that need idempotent webhook/
// transform registration with the ingress platform at startup. Optional:
// not every ChannelHandler needs it.
type ChannelSetup interface {
	Setup(ctx context.Context) error
}

// Poller is implemented by channels that ingest inbound messages via
// long-polling rather than a pushed webhook (§4.10's Channel Normalizer,
// Telegram's concrete shape). Optional, like ChannelSetup: a webhook-based
// channel added later wouldn't implement it.
type Poller interface {
	Poll(ctx context.Context) (<-chan MessageReceivedEvent, error)
}

// ChannelRegistry resolves a channel name (as carried on ChannelMeta) to
// its handler. One registry is built at startup and shared by every
// dispatcher.
type ChannelRegistry struct {
	handlers map[string]ChannelHandler
}

// NewChannelRegistry creates an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{handlers: make(map[string]ChannelHandler)}
}

// Register associates a channel name with its handler.
func (r *ChannelRegistry) Register(channel string, h ChannelHandler) {
	r.handlers[channel] = h
}

// Get looks up the handler for a channel name.
func (r *ChannelRegistry) Get(channel string) (ChannelHandler, bool) {
	h, ok := r.handlers[channel]
	return h, ok
}

// Setup calls Setup on every registered handler that implements
// ChannelSetup. Handlers are visited in map iteration order, so the order
// is not defined; the first error stops the walk.
func (r *ChannelRegistry) Setup(ctx context.Context) error {
	for name, h := range r.handlers {
		setup, ok := h.(ChannelSetup)
		if !ok {
			continue
		}
		if err := setup.Setup(ctx); err != nil {
			return fmt.Errorf("channel %s: setup: %w", name, err)
		}
	}
	return nil
}

// PollAll starts Poll on every registered handler that implements Poller
// and returns their event streams, one per polling channel.
func (r *ChannelRegistry) PollAll(ctx context.Context) ([]<-chan MessageReceivedEvent, error) {
	var streams []<-chan MessageReceivedEvent
	for name, h := range r.handlers {
		poller, ok := h.(Poller)
		if !ok {
			continue
		}
		stream, err := poller.Poll(ctx)
		if err != nil {
			return nil, fmt.Errorf("channel %s: poll: %w", name, err)
		}
		streams = append(streams, stream)
	}
	return streams, nil
}
