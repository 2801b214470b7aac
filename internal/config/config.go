// Package config loads the runtime's configuration: defaults, then an
// optional TOML file, then environment overrides (env wins), matching §6's
// recognized key set.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	LLM        LLMConfig        `toml:"llm"`
	Compaction CompactionConfig `toml:"compaction"`
	Heartbeat  HeartbeatConfig  `toml:"heartbeat"`
	Telegram   TelegramConfig   `toml:"telegram"`
}

// AgentConfig carries the agent's identity and execution limits.
type AgentConfig struct {
	Name          string `toml:"name"`
	Workspace     string `toml:"workspace"`
	MaxIterations int    `toml:"max_iterations"`
}

// LLMConfig selects the provider and model the gateway calls.
type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// CompactionConfig tunes the compactor's token budget.
type CompactionConfig struct {
	MaxTokens        int     `toml:"max_tokens"`
	Threshold        float64 `toml:"threshold"`
	KeepRecentTokens int     `toml:"keep_recent_tokens"`
}

// HeartbeatConfig tunes the memory-distillation cron.
type HeartbeatConfig struct {
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// TelegramConfig carries the Telegram channel's credentials.
type TelegramConfig struct {
	Token         string `toml:"token"`
	AllowedUserID string `toml:"allowed_user_id"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Agent: AgentConfig{
			Name:          "conduit",
			Workspace:     filepath.Join(home, "conduit-workspace"),
			MaxIterations: 20,
		},
		LLM: LLMConfig{
			Provider: "openaicompat",
			Model:    "gpt-4o-mini",
		},
		Compaction: CompactionConfig{
			MaxTokens:        150_000,
			Threshold:        0.8,
			KeepRecentTokens: 20_000,
		},
		Heartbeat: HeartbeatConfig{
			Cron:          "*/30 * * * *",
			RetentionDays: 30,
		},
	}
}

// Load reads config: defaults -> TOML file (if present) -> env vars (env
// wins), exactly as the teacher's config layering does.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "conduit.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("AGENT_NAME"); v != "" {
		cfg.Agent.Name = v
	}
	if v := os.Getenv("AGENT_WORKSPACE"); v != "" {
		cfg.Agent.Workspace = v
	}
	if v := os.Getenv("MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("COMPACTION_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Compaction.MaxTokens = n
		}
	}
	if v := os.Getenv("COMPACTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Compaction.Threshold = f
		}
	}
	if v := os.Getenv("KEEP_RECENT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Compaction.KeepRecentTokens = n
		}
	}
	if v := os.Getenv("HEARTBEAT_CRON"); v != "" {
		cfg.Heartbeat.Cron = v
	}
	if v := os.Getenv("MEMORY_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Heartbeat.RetentionDays = n
		}
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_ID"); v != "" {
		cfg.Telegram.AllowedUserID = v
	}

	return cfg
}
