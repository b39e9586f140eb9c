package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.DefaultMaxDepth != 3 {
		t.Errorf("expected default max depth 3, got %d", cfg.Engine.DefaultMaxDepth)
	}

	if cfg.Engine.MaxDepthLimit != 5 {
		t.Errorf("expected max depth limit 5, got %d", cfg.Engine.MaxDepthLimit)
	}

	if cfg.Engine.MinLatency != 800*time.Millisecond {
		t.Errorf("expected min latency 800ms, got %v", cfg.Engine.MinLatency)
	}

	if cfg.Engine.MaxLatency != 1500*time.Millisecond {
		t.Errorf("expected max latency 1500ms, got %v", cfg.Engine.MaxLatency)
	}

	if cfg.Server.Address() != "127.0.0.1:8080" {
		t.Errorf("expected address 127.0.0.1:8080, got %q", cfg.Server.Address())
	}

	if cfg.Logger.Level != "info" {
		t.Errorf("expected logger level info, got %q", cfg.Logger.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: 0.0.0.0
  port: 9090
  allowed_origins:
    - https://example.com
engine:
  default_max_depth: 2
  max_depth_limit: 4
  min_latency: 10ms
  max_latency: 20ms
  rules_file: /etc/recursor/rules.yaml
logger:
  level: debug
  encoding: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Server.Address() != "0.0.0.0:9090" {
		t.Errorf("expected address 0.0.0.0:9090, got %q", cfg.Server.Address())
	}

	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("unexpected allowed origins: %v", cfg.Server.AllowedOrigins)
	}

	if cfg.Engine.DefaultMaxDepth != 2 {
		t.Errorf("expected default max depth 2, got %d", cfg.Engine.DefaultMaxDepth)
	}

	if cfg.Engine.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min latency 10ms, got %v", cfg.Engine.MinLatency)
	}

	if cfg.Engine.RulesFile != "/etc/recursor/rules.yaml" {
		t.Errorf("expected rules file path, got %q", cfg.Engine.RulesFile)
	}

	if cfg.Logger.Encoding != "json" {
		t.Errorf("expected json encoding, got %q", cfg.Logger.Encoding)
	}

	// Unset keys keep their defaults
	if cfg.Server.RequestIDHeader != "X-Request-ID" {
		t.Errorf("expected default request id header, got %q", cfg.Server.RequestIDHeader)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine:\n  default_max_depth: 2\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("RECURSOR_ENGINE_DEFAULT_MAX_DEPTH", "4")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.DefaultMaxDepth != 4 {
		t.Errorf("expected env override 4, got %d", cfg.Engine.DefaultMaxDepth)
	}
}

func TestLoad_RulesFileExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine:\n  rules_file: ${RULES_DIR}/rules.yaml\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("RULES_DIR", "/srv/rules")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Engine.RulesFile != "/srv/rules/rules.yaml" {
		t.Errorf("expected expanded rules file, got %q", cfg.Engine.RulesFile)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"depth above limit", "engine:\n  default_max_depth: 9\n", "default_max_depth"},
		{"zero limit", "engine:\n  max_depth_limit: 0\n", "max_depth_limit"},
		{"inverted latency", "engine:\n  min_latency: 2s\n  max_latency: 1s\n", "max_latency"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad encoding", "logger:\n  encoding: xml\n", "logger.encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			_, err := LoadFromPath(configPath)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestWatch_RequiresPath(t *testing.T) {
	if err := Watch("", func(*Config, error) {}); err == nil {
		t.Error("expected an error when no path is given")
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/recursor"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestLocate(t *testing.T) {
	if got := Locate("/explicit/config.yaml"); got != "/explicit/config.yaml" {
		t.Errorf("expected explicit path, got %q", got)
	}

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	if got := Locate(""); got != "" {
		t.Errorf("expected no config file, got %q", got)
	}

	userDir := filepath.Join(dir, "xdg", "recursor")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatal(err)
	}
	userPath := filepath.Join(userDir, "config.yaml")
	if err := os.WriteFile(userPath, []byte("engine:\n  default_max_depth: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Locate(""); got != userPath {
		t.Errorf("expected user config %q, got %q", userPath, got)
	}

	projectPath := filepath.Join(dir, ".recursor.yaml")
	if err := os.WriteFile(projectPath, []byte("engine:\n  default_max_depth: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := Locate("")
	if resolved, err := filepath.EvalSymlinks(got); err == nil {
		got = resolved
	}
	want, _ := filepath.EvalSymlinks(projectPath)
	if got != want {
		t.Errorf("expected project config %q to win, got %q", want, got)
	}
}

func TestWatch_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  default_max_depth: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *Config, 4)
	err := Watch(path, func(cfg *Config, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("engine:\n  default_max_depth: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Engine.DefaultMaxDepth == 4 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}
