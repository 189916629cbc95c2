package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
vendors:
  asr:
    provider: mock
  llm:
    provider: mock
auth:
  mode: none
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Path != "/stream" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Session.GracePeriod != 5*time.Second {
		t.Fatalf("unexpected grace period: %v", cfg.Session.GracePeriod)
	}
	if cfg.Session.MaxResponseBytes != 32*1024 {
		t.Fatalf("unexpected response ceiling: %d", cfg.Session.MaxResponseBytes)
	}
	if cfg.Conversation.Driver != "memory" {
		t.Fatalf("unexpected store driver: %s", cfg.Conversation.Driver)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("unexpected log format: %s", cfg.LogFormat)
	}
}

func TestLoadExpandsEnvInSettings(t *testing.T) {
	t.Setenv("TEST_ASR_KEY", "dg-secret")
	path := writeConfig(t, `
vendors:
  asr:
    provider: deepgram
    settings:
      api_key: ${TEST_ASR_KEY}
  llm:
    provider: mock
auth:
  mode: none
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got := cfg.Vendors.ASR.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("expected env expansion, got %v", got)
	}
}

func TestLoadRejectsMissingProvider(t *testing.T) {
	path := writeConfig(t, `
vendors:
  llm:
    provider: mock
auth:
  mode: none
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing asr provider")
	}
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
vendors:
  asr:
    provider: mock
  llm:
    provider: mock
conversation:
  driver: redis
auth:
  mode: none
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for redis without addr")
	}
}

func TestLoadRejectsStaticAuthWithoutTokens(t *testing.T) {
	path := writeConfig(t, `
vendors:
  asr:
    provider: mock
  llm:
    provider: mock
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for static auth without tokens")
	}
}
