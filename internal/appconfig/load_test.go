package appconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/pslog"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected default version, got %d", cfg.ConfigVersion)
	}
	if cfg.Engine.RecentlyClosedCap != 25 {
		t.Fatalf("expected default ring cap, got %d", cfg.Engine.RecentlyClosedCap)
	}
	engine := cfg.EngineConfig()
	if engine.FlushInterval != 2*time.Second || engine.DebounceWindow != 60*time.Millisecond {
		t.Fatalf("unexpected engine durations: %+v", engine)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("config_version: 1\nstate_dir: /tmp/loom-state\nengine:\n  flush_interval_ms: 5000\n  recently_closed_cap: 10\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/tmp/loom-state" || cfg.Engine.FlushIntervalMS != 5000 || cfg.Engine.RecentlyClosedCap != 10 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Engine.DebounceWindowMS != 60 {
		t.Fatalf("untouched fields must keep defaults, got %d", cfg.Engine.DebounceWindowMS)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("config_version: 99\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestLoadRejectsDebounceAboveFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("config_version: 1\nengine:\n  flush_interval_ms: 50\n  debounce_window_ms: 100\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected debounce validation error")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("unexpected path %q", written)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("round trip version mismatch: %d", cfg.ConfigVersion)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("config_version: 1\nlogging:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan Config, 1)
	err := Watch(ctx, path, pslog.Ctx(ctx), func(cfg Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	// Give the watcher a moment to register before the write.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("config_version: 1\nlogging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case cfg := <-changed:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("expected reloaded level, got %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}
}
