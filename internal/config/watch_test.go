package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := `
server:
  host: 0.0.0.0
  port: 9999
auth:
  jwt_secret: shh
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
tool_servers:
  - id: one
    name: One
    transport: sse
    url: http://localhost:4000
    enabled: true
`
	if err := os.WriteFile(path, []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	updated := `
server:
  host: 0.0.0.0
  port: 9999
auth:
  jwt_secret: shh
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
tool_servers:
  - id: one
    name: One
    transport: sse
    url: http://localhost:4000
    enabled: true
  - id: two
    name: Two
    transport: sse
    url: http://localhost:4001
    enabled: true
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.ToolServers) != 2 {
			t.Fatalf("ToolServers len = %d, want 2", len(cfg.ToolServers))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_BadReloadKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := "server:\n  host: 0.0.0.0\n  port: 9999\nauth:\n  jwt_secret: shh\nllm:\n  default_provider: anthropic\n  providers:\n    anthropic:\n      api_key: sk-test\n"
	if err := os.WriteFile(path, []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Fatal("onReload should not fire for an invalid config")
	case <-time.After(500 * time.Millisecond):
	}
}
