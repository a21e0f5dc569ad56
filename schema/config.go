package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// EngineConfig defines defaults and limits for the tab engine.
type EngineConfig struct {
	// StatePath is the SQLite database file holding persisted state.
	StatePath string
	// FlushInterval is the period of the batched persistence flush.
	FlushInterval time.Duration
	// DebounceWindow batches rapid notification bursts per window.
	DebounceWindow time.Duration
	// ArchiveThreshold destroys tabs idle longer than this at restore and
	// during the sweep. Recovery is limited to the recently-closed ring.
	ArchiveThreshold time.Duration
	// SweepInterval is the period of the archive sweep.
	SweepInterval time.Duration
	// RecentlyClosedCap bounds the recently-closed ring.
	RecentlyClosedCap int
	// DefaultGeometry is used for windows restored without saved geometry.
	DefaultGeometry WindowGeometry
}

const (
	// DefaultFlushInterval is the default persistence flush period.
	DefaultFlushInterval = 2 * time.Second
	// DefaultDebounceWindow is the default notification debounce.
	DefaultDebounceWindow = 60 * time.Millisecond
	// DefaultArchiveThreshold is the default idle-tab destruction threshold.
	DefaultArchiveThreshold = 30 * 24 * time.Hour
	// DefaultSweepInterval is the default archive sweep period.
	DefaultSweepInterval = 10 * time.Minute
	// DefaultRecentlyClosedCap is the default recently-closed ring size.
	DefaultRecentlyClosedCap = 25
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.StatePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.StatePath = filepath.Join(home, ".loom", "state.db")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.ArchiveThreshold <= 0 {
		cfg.ArchiveThreshold = DefaultArchiveThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.RecentlyClosedCap <= 0 {
		cfg.RecentlyClosedCap = DefaultRecentlyClosedCap
	}
	if cfg.DefaultGeometry.Width <= 0 || cfg.DefaultGeometry.Height <= 0 {
		cfg.DefaultGeometry = WindowGeometry{X: 80, Y: 80, Width: 1280, Height: 800}
	}
	if cfg.DebounceWindow > cfg.FlushInterval {
		return EngineConfig{}, errors.New("debounce window must not exceed flush interval")
	}
	return cfg, nil
}
