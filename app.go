package conduit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nevindra/conduit/internal/config"
	"github.com/nevindra/conduit/internal/durable"
	"github.com/nevindra/conduit/internal/telemetry"
	"github.com/nevindra/conduit/provider/openaicompat"
)

// App wires every collaborator described by §4 into one runnable process:
// config -> stores -> gateway -> tool registries -> agent loop -> channels
// -> dispatcher -> heartbeat. Grounded on the teacher's cmd/bot_example
// App, generalized from its single-channel Telegram wiring to the
// registry-of-channels shape §4.10 calls for.
type App struct {
	cfg        config.Config
	channels   *ChannelRegistry
	dispatcher *Dispatcher
	heartbeat  *Heartbeat
	durable    *durable.Store
	shutdown   func(context.Context) error
	logger     *slog.Logger
}

// AppOption configures an App at construction time.
type AppOption func(*appBuild)

type appBuild struct {
	logger      *slog.Logger
	tracerSetup bool
	serviceName string
	channels    map[string]ChannelHandler
}

// WithLogger sets the structured logger every collaborator inherits.
func WithLogger(l *slog.Logger) AppOption { return func(b *appBuild) { b.logger = l } }

// WithTracing enables the OTLP/HTTP-backed tracer (internal/telemetry.Init)
// under the given service name. Omit this option to run untraced — every
// span call is a no-op per loop.go's nil-tracer short circuit.
func WithTracing(serviceName string) AppOption {
	return func(b *appBuild) { b.tracerSetup = true; b.serviceName = serviceName }
}

// WithChannel registers a channel handler under name. The concrete
// ChannelHandler (e.g. channels/telegram.Bot) is constructed by the caller
// — cmd/conduit, not this package — since a channel adapter imports this
// package and this package cannot import it back.
func WithChannel(name string, h ChannelHandler) AppOption {
	return func(b *appBuild) {
		if b.channels == nil {
			b.channels = make(map[string]ChannelHandler)
		}
		b.channels[name] = h
	}
}

// NewApp assembles the full runtime from cfg. It opens the durable store
// and registers the channel handlers passed via WithChannel, but does not
// start polling or the heartbeat cron — call Run for that.
func NewApp(ctx context.Context, cfg config.Config, opts ...AppOption) (*App, error) {
	b := &appBuild{logger: nopLogger}
	for _, o := range opts {
		o(b)
	}

	var tracer Tracer
	var shutdown func(context.Context) error
	if b.tracerSetup {
		t, stop, err := telemetry.Init(ctx, b.serviceName)
		if err != nil {
			return nil, fmt.Errorf("app: telemetry init: %w", err)
		}
		tracer, shutdown = t, stop
	}

	mem := NewMemoryStore(cfg.Agent.Workspace)
	sessions := NewSessionStore(cfg.Agent.Workspace, b.logger)

	durableStore, err := durable.Open(filepath.Join(cfg.Agent.Workspace, "durable.db"), durable.WithLogger(b.logger))
	if err != nil {
		return nil, fmt.Errorf("app: durable store: %w", err)
	}
	if err := durableStore.Init(ctx); err != nil {
		return nil, fmt.Errorf("app: durable store init: %w", err)
	}

	provider := openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, openaicompat.WithName(cfg.LLM.Provider))
	decorated := WithRateLimit(WithRetry(provider, b.logger), RPM(500), TPM(200_000))
	gateway := NewGateway(decorated, cfg.LLM.Model)

	guard := NewInjectionGuard(InjectionLogger(b.logger))
	assembler := NewContextAssembler(cfg.Agent.Name, mem, sessions, guard)
	assembler.logger = b.logger
	compactor := NewCompactor(gateway, sessions,
		CompactorMaxTokens(cfg.Compaction.MaxTokens),
		CompactorThreshold(cfg.Compaction.Threshold),
		CompactorKeepRecentTokens(cfg.Compaction.KeepRecentTokens))
	pruner := NewPruner()

	mainTools, subAgentTools := BuildToolRegistries(cfg.Agent.Workspace, mem)

	spawner := NewSubAgentSpawner(gateway, subAgentTools, assembler, compactor, pruner, durableStore, tracer, cfg.Agent.MaxIterations)
	loop := NewAgentLoop(gateway, mainTools, assembler, compactor, pruner, durableStore, spawner.Spawn,
		LoopMaxIterations(cfg.Agent.MaxIterations), LoopLogger(b.logger), LoopTracer(tracer))

	channels := NewChannelRegistry()
	for name, h := range b.channels {
		channels.Register(name, h)
	}

	controller := durable.NewController()
	dispatcher := NewDispatcher(loop, channels, controller, DispatcherLogger(b.logger))

	heartbeat := NewHeartbeat(gateway, mem, durableStore, cfg.Heartbeat.RetentionDays, HeartbeatLogger(b.logger))

	return &App{
		cfg:        cfg,
		channels:   channels,
		dispatcher: dispatcher,
		heartbeat:  heartbeat,
		durable:    durableStore,
		shutdown:   shutdown,
		logger:     b.logger,
	}, nil
}

// Run starts every channel's Poll loop, the heartbeat cron, and blocks
// dispatching MessageReceivedEvents until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.channels.Setup(ctx); err != nil {
		return fmt.Errorf("app: channel setup: %w", err)
	}

	pollers, err := a.channels.PollAll(ctx)
	if err != nil {
		return fmt.Errorf("app: channel poll: %w", err)
	}

	stopHeartbeat, err := a.heartbeat.Start(ctx, a.cfg.Heartbeat.Cron)
	if err != nil {
		return fmt.Errorf("app: heartbeat start: %w", err)
	}
	defer stopHeartbeat()

	a.logger.Info("app: running", "agent", a.cfg.Agent.Name)

	merged := mergeEvents(pollers)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("app: shutting down")
			if a.shutdown != nil {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = a.shutdown(shutdownCtx)
			}
			return a.durable.Close()
		case event, ok := <-merged:
			if !ok {
				return nil
			}
			go a.dispatcher.Dispatch(ctx, event)
		}
	}
}

// mergeEvents fans multiple channel poll streams into one, per §4.10: each
// registered channel polls independently but feeds the same dispatcher.
func mergeEvents(streams []<-chan MessageReceivedEvent) <-chan MessageReceivedEvent {
	out := make(chan MessageReceivedEvent)
	if len(streams) == 0 {
		close(out)
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(streams))
	for _, s := range streams {
		go func(s <-chan MessageReceivedEvent) {
			defer wg.Done()
			for ev := range s {
				out <- ev
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
