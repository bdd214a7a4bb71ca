package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: \"123:abc\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("run_mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Quiz.TimeoutSeconds != 30 {
		t.Errorf("timeout_seconds = %d, want 30", cfg.Quiz.TimeoutSeconds)
	}
	if cfg.Quiz.NextDelaySeconds != 10 {
		t.Errorf("next_delay_seconds = %d, want 10", cfg.Quiz.NextDelaySeconds)
	}
	if cfg.Quiz.StorageDir == "" || cfg.Quiz.RenderURL == "" {
		t.Errorf("quiz defaults not filled: %+v", cfg.Quiz)
	}
	if cfg.Database.Enabled() {
		t.Error("database should be disabled without a host")
	}
}

func TestNormalizeRejectsMissingToken(t *testing.T) {
	err := Normalize(&Config{})
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNormalizeWebhookValidation(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.RunMode = "webhook"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for webhook mode without url")
	}

	cfg.Webhook.URL = "https://example.org/hook"
	cfg.Webhook.Listen = "0.0.0.0"
	cfg.Webhook.Port = 8443
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Database.Host = "localhost"
	cfg.Database.Name = "quiz"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Errorf("database defaults not filled: %+v", cfg.Database)
	}
	if cfg.Database.MaxConnections != 4 {
		t.Errorf("max_connections = %d, want 4", cfg.Database.MaxConnections)
	}
}

func TestNormalizeRunModeAlias(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.RunMode = "polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("run_mode alias not normalized: %q", cfg.Telegram.RunMode)
	}
}
