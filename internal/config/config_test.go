package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Assistant.MaxContextMessages != 40 {
		t.Errorf("expected 40, got %d", cfg.Assistant.MaxContextMessages)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Sweep.Schedule != "@every 5m" {
		t.Errorf("expected @every 5m, got %s", cfg.Sweep.Schedule)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[telegram]
token = "bot123"
admin_chat_id = "555"

[assistant]
max_context_messages = 25
ladder_seconds = [30, 20]
signature = "— Soporte"
`), 0644)

	cfg := Load(path)
	if cfg.Telegram.Token != "bot123" {
		t.Errorf("expected bot123, got %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminChatID != "555" {
		t.Errorf("expected 555, got %s", cfg.Telegram.AdminChatID)
	}
	if cfg.Assistant.MaxContextMessages != 25 {
		t.Errorf("expected 25, got %d", cfg.Assistant.MaxContextMessages)
	}
	// Defaults preserved
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default should be preserved, got %s", cfg.Database.Driver)
	}

	ladder := cfg.Assistant.Ladder()
	if len(ladder) != 2 || ladder[0] != 30*time.Second || ladder[1] != 20*time.Second {
		t.Errorf("unexpected ladder %v", ladder)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ATIENDE_TELEGRAM_TOKEN", "env-token")
	t.Setenv("ATIENDE_OPENAI_API_KEY", "env-key")
	t.Setenv("ATIENDE_POSTGRES_URL", "postgres://localhost/atiende")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("expected env-token, got %s", cfg.Telegram.Token)
	}
	if cfg.OpenAI.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.OpenAI.APIKey)
	}
	// Setting a postgres URL flips the driver too.
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Database.Driver)
	}
}

func TestLadderUnsetReturnsNil(t *testing.T) {
	if got := Default().Assistant.Ladder(); got != nil {
		t.Errorf("expected nil ladder, got %v", got)
	}
}

func TestMaxAgeDuration(t *testing.T) {
	cfg := Default()
	if got := cfg.Sweep.MaxAgeDuration(); got != 10*time.Minute {
		t.Errorf("default max age = %v", got)
	}
	cfg.Sweep.MaxAge = "30s"
	if got := cfg.Sweep.MaxAgeDuration(); got != 30*time.Second {
		t.Errorf("parsed max age = %v", got)
	}
	cfg.Sweep.MaxAge = "garbage"
	if got := cfg.Sweep.MaxAgeDuration(); got != 10*time.Minute {
		t.Errorf("bad input should fall back, got %v", got)
	}
}
