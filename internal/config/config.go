package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Telegram  TelegramConfig  `toml:"telegram"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Assistant AssistantConfig `toml:"assistant"`
	Sweep     SweepConfig     `toml:"sweep"`
	Database  DatabaseConfig  `toml:"database"`
	Health    HealthConfig    `toml:"health"`
	Observer  ObserverConfig  `toml:"observer"`
}

type TelegramConfig struct {
	Token       string `toml:"token"`
	AdminChatID string `toml:"admin_chat_id"`
}

type OpenAIConfig struct {
	APIKey      string `toml:"api_key"`
	AssistantID string `toml:"assistant_id"`
	BaseURL     string `toml:"base_url"`
}

type AssistantConfig struct {
	MaxContextMessages int      `toml:"max_context_messages"`
	PollIntervalMS     int      `toml:"poll_interval_ms"`
	Preamble           string   `toml:"preamble"`
	Signature          string   `toml:"signature"`
	Fallback           string   `toml:"fallback"`
	LadderSeconds      []int    `toml:"ladder_seconds"`
	DrainPauseMS       int      `toml:"drain_pause_ms"`
}

type SweepConfig struct {
	Schedule   string `toml:"schedule"`
	MaxAge     string `toml:"max_age"`
	BindingTTL string `toml:"binding_ttl"` // idle thread bindings older than this are evicted
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "postgres"
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type HealthConfig struct {
	Addr string `toml:"addr"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Assistant: AssistantConfig{
			MaxContextMessages: 40,
			PollIntervalMS:     2000,
			DrainPauseMS:       500,
		},
		Sweep: SweepConfig{
			Schedule:   "@every 5m",
			MaxAge:     "10m",
			BindingTTL: "72h",
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "atiende.db"},
		Health:   HealthConfig{Addr: ":8090"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "atiende.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("ATIENDE_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("ATIENDE_ADMIN_CHAT_ID"); v != "" {
		cfg.Telegram.AdminChatID = v
	}
	if v := os.Getenv("ATIENDE_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("ATIENDE_ASSISTANT_ID"); v != "" {
		cfg.OpenAI.AssistantID = v
	}
	if v := os.Getenv("ATIENDE_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("ATIENDE_POSTGRES_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("ATIENDE_HEALTH_ADDR"); v != "" {
		cfg.Health.Addr = v
	}
	if os.Getenv("ATIENDE_OBSERVER_ENABLED") == "true" || os.Getenv("ATIENDE_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

// Ladder converts the configured rung seconds to durations, or nil when unset
// so the caller keeps the built-in ladder.
func (c AssistantConfig) Ladder() []time.Duration {
	if len(c.LadderSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.LadderSeconds))
	for i, s := range c.LadderSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// MaxAgeDuration parses the sweep max age, falling back to 10 minutes on bad
// input.
func (c SweepConfig) MaxAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// BindingTTLDuration parses the idle binding TTL, falling back to 72 hours on
// bad input.
func (c SweepConfig) BindingTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.BindingTTL)
	if err != nil || d <= 0 {
		return 72 * time.Hour
	}
	return d
}
