package conduit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/conduit/internal/durable"
)

// sendReplyMaxRetries bounds SendReply's transport retry count (§6: "up to
// 3 retries"): one initial attempt plus at most this many retries.
const sendReplyMaxRetries = 3

// Dispatcher implements the event fan-out of §4.10/§4.11: one
// MessageReceivedEvent triggers Acknowledge and HandleMessage in parallel;
// HandleMessage's ReplyReadyEvent, in turn, triggers SendReply.
type Dispatcher struct {
	loop       *AgentLoop
	channels   *ChannelRegistry
	controller *durable.Controller
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// DispatcherLogger sets the structured logger.
func DispatcherLogger(l *slog.Logger) DispatcherOption { return func(d *Dispatcher) { d.logger = l } }

// NewDispatcher assembles a Dispatcher from its collaborators.
func NewDispatcher(loop *AgentLoop, channels *ChannelRegistry, controller *durable.Controller, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{loop: loop, channels: channels, controller: controller, logger: nopLogger}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch fans a normalized inbound event out to Acknowledge and
// HandleMessage in parallel (§4.11: "Parallel to HandleMessage, the
// substrate triggers ... Acknowledge"). Plain errgroup.Group, not
// WithContext — a failure in one branch must never cancel the other.
func (d *Dispatcher) Dispatch(ctx context.Context, event MessageReceivedEvent) {
	var g errgroup.Group
	g.Go(func() error {
		d.Acknowledge(ctx, event)
		return nil
	})
	g.Go(func() error {
		d.HandleMessage(ctx, event)
		return nil
	})
	g.Wait()
}

// Acknowledge sends a best-effort receipt signal. No retries; failures are
// logged and swallowed (§4.11, §6).
func (d *Dispatcher) Acknowledge(ctx context.Context, event MessageReceivedEvent) {
	handler, ok := d.channels.Get(event.Channel)
	if !ok {
		return
	}
	if err := handler.Acknowledge(ctx, event.Destination, event.ChannelMeta); err != nil {
		d.logger.Warn("dispatch: acknowledge failed", "channel", event.Channel, "session", event.SessionKey, "error", err)
	}
}

// HandleMessage runs the agent loop for event under the singleton
// controller's per-sessionKey guard (§4.11: concurrency 1 per sessionKey,
// cancel-on-same-key), then routes the result to SendReply. A run cancelled
// by a newer message for the same session never reaches SendReply and is
// never user-visible (§7); any other run failure is routed to
// GlobalFailureHandler.
func (d *Dispatcher) HandleMessage(ctx context.Context, event MessageReceivedEvent) {
	runCtx, done := d.controller.Begin(ctx, string(event.SessionKey), event.MessageID)
	defer done()

	runID := fmt.Sprintf("%s-%s", event.SessionKey, event.MessageID)
	result, err := d.loop.Run(runCtx, runID, event.SessionKey, event.Message)
	if err != nil {
		if isCancelledRun(runCtx, err) {
			return
		}
		d.GlobalFailureHandler(ctx, event, err)
		return
	}

	d.SendReply(ctx, ReplyReadyEvent{
		Response:    result.Response,
		Channel:     event.Channel,
		Destination: event.Destination,
		ChannelMeta: event.ChannelMeta,
	})
}

// isCancelledRun reports whether err represents this run being superseded
// by a newer message for the same session rather than a genuine failure.
func isCancelledRun(runCtx context.Context, err error) bool {
	return errors.Is(err, ErrCancelled) || (errors.Is(err, context.Canceled) && runCtx.Err() == context.Canceled)
}

// SendReply dispatches a ready reply to its originating channel, retrying
// transport failures up to sendReplyMaxRetries times with a short linear
// backoff (§6). Exhausting retries routes to GlobalFailureHandler.
func (d *Dispatcher) SendReply(ctx context.Context, reply ReplyReadyEvent) {
	handler, ok := d.channels.Get(reply.Channel)
	if !ok {
		d.logger.Error("dispatch: no channel handler registered", "channel", reply.Channel)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= sendReplyMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if err := handler.SendReply(ctx, reply.Response, reply.Destination, reply.ChannelMeta); err != nil {
			lastErr = err
			d.logger.Warn("dispatch: send reply failed, retrying", "channel", reply.Channel, "attempt", attempt+1, "error", err)
			continue
		}
		return
	}

	d.logger.Error("dispatch: send reply exhausted retries", "channel", reply.Channel, "error", lastErr)
	d.GlobalFailureHandler(ctx, MessageReceivedEvent{Channel: reply.Channel, Destination: reply.Destination, ChannelMeta: reply.ChannelMeta}, lastErr)
}

// GlobalFailureHandler is the substrate's function.failed lifecycle hook
// (§4.11, §7's "Fatal run failure" row): it finds the originating channel
// and sends a short apologetic message. There is no further fallback past
// this handler, so its own send failure is only logged.
func (d *Dispatcher) GlobalFailureHandler(ctx context.Context, event MessageReceivedEvent, cause error) {
	d.logger.Error("dispatch: run failed", "session", event.SessionKey, "channel", event.Channel, "error", cause)

	handler, ok := d.channels.Get(event.Channel)
	if !ok {
		return
	}
	const apology = "Sorry, something went wrong handling that message."
	if err := handler.SendReply(ctx, apology, event.Destination, event.ChannelMeta); err != nil {
		d.logger.Error("dispatch: failure-handler send also failed", "channel", event.Channel, "error", err)
	}
}
