// Command conduit runs the durable conversational agent runtime: it loads
// configuration, wires the channel adapters enabled by that configuration,
// and blocks serving inbound messages until interrupted.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	conduit "github.com/nevindra/conduit"
	"github.com/nevindra/conduit/channels/telegram"
	"github.com/nevindra/conduit/internal/config"
)

func main() {
	cfg := config.Load(os.Getenv("CONDUIT_CONFIG"))

	if cfg.LLM.APIKey == "" {
		log.Fatal("conduit: LLM_API_KEY is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []conduit.AppOption{conduit.WithLogger(logger)}

	if cfg.Telegram.Token != "" {
		bot := telegram.New(cfg.Telegram.Token,
			telegram.WithAllowedUserID(cfg.Telegram.AllowedUserID),
			telegram.WithLogger(logger))
		opts = append(opts, conduit.WithChannel(telegram.ChannelName, bot))
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		opts = append(opts, conduit.WithTracing(cfg.Agent.Name))
	}

	app, err := conduit.NewApp(ctx, cfg, opts...)
	if err != nil {
		log.Fatalf("conduit: init: %v", err)
	}

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("conduit: run: %v", err)
	}
}
