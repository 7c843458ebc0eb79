package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
server:
  api_url: "http://localhost:3000/api"
  ws_url: "ws://localhost:3000/ws"
  token: "abc"
transport:
  reconnect_attempts: 5
  command_timeout: 2s
log:
  level: debug
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Server.APIURL != "http://localhost:3000/api" {
		t.Errorf("APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Transport.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want 5", cfg.Transport.ReconnectAttempts)
	}
	if cfg.Transport.CommandTimeout != 2*time.Second {
		t.Errorf("CommandTimeout = %v, want 2s", cfg.Transport.CommandTimeout)
	}
	// Unset values fall back to defaults
	if cfg.Transport.ReconnectBase != time.Second {
		t.Errorf("ReconnectBase = %v, want default 1s", cfg.Transport.ReconnectBase)
	}
	if cfg.Rematch.GracePeriod != 3*time.Second {
		t.Errorf("GracePeriod = %v, want default 3s", cfg.Rematch.GracePeriod)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CHISME_SECRET", "sekrit")

	path := writeConfig(t, `
server:
  api_url: "http://localhost:3000/api"
  ws_url: "ws://localhost:3000/ws"
  token: "${TEST_CHISME_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Token != "sekrit" {
		t.Errorf("Token = %q, want sekrit", cfg.Server.Token)
	}
}

func TestLoadAndValidate_EnvOverridesFile(t *testing.T) {
	t.Setenv("CHISME_LOG_LEVEL", "warn")

	path := writeConfig(t, `
server:
  api_url: "http://localhost:3000/api"
  ws_url: "ws://localhost:3000/ws"
log:
  level: info
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn (env wins)", cfg.Log.Level)
	}
}

func TestValidate_MissingURLs(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("empty server URLs should fail validation")
	}
}

func TestValidate_BadWSScheme(t *testing.T) {
	var cfg Config
	cfg.Server.APIURL = "http://localhost:3000"
	cfg.Server.WSURL = "http://localhost:3000/ws"
	cfg.applyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("ws_url without ws:// scheme should fail validation")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	var cfg Config
	cfg.Server.APIURL = "http://localhost:3000"
	cfg.Server.WSURL = "ws://localhost:3000/ws"
	cfg.applyDefaults()
	cfg.Log.Level = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Error("unknown log level should fail validation")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/client.yaml"); err == nil {
		t.Error("missing file should fail")
	}
}
