package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/recursor/internal/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recursor.log")

	log, err := New(config.LoggerConfig{
		Level:       "debug",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Named("engine").Infow("unit_started", "depth", 1)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"message":"unit_started"`, `"depth":1`, `"logger":"engine"`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recursor.log")

	log, err := New(config.LoggerConfig{
		Level:       "loud",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debugw("hidden")
	log.Infow("shown")
	_ = log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at fallback info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info entry missing")
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Infow("nothing", "k", "v")
	if err := log.With("run", "x").Sync(); err != nil {
		t.Errorf("Sync on nop logger returned %v", err)
	}
}
