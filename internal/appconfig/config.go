package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/loom/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Browser       BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig controls tab engine behavior.
type EngineConfig struct {
	FlushIntervalMS      int            `mapstructure:"flush_interval_ms" yaml:"flush_interval_ms"`
	DebounceWindowMS     int            `mapstructure:"debounce_window_ms" yaml:"debounce_window_ms"`
	ArchiveThresholdDays int            `mapstructure:"archive_threshold_days" yaml:"archive_threshold_days"`
	SweepIntervalMinutes int            `mapstructure:"sweep_interval_minutes" yaml:"sweep_interval_minutes"`
	RecentlyClosedCap    int            `mapstructure:"recently_closed_cap" yaml:"recently_closed_cap"`
	DefaultWindow        GeometryConfig `mapstructure:"default_window" yaml:"default_window"`
}

// GeometryConfig is window geometry in screen points.
type GeometryConfig struct {
	X      int `mapstructure:"x" yaml:"x"`
	Y      int `mapstructure:"y" yaml:"y"`
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig configures the page view backend.
type BrowserConfig struct {
	ExecPath   string `mapstructure:"exec_path" yaml:"exec_path"`
	Headless   bool   `mapstructure:"headless" yaml:"headless"`
	ProfileDir string `mapstructure:"profile_dir" yaml:"profile_dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Mode  string `mapstructure:"mode" yaml:"mode"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".loom", "state"),
		Engine: EngineConfig{
			FlushIntervalMS:      int(schema.DefaultFlushInterval / time.Millisecond),
			DebounceWindowMS:     int(schema.DefaultDebounceWindow / time.Millisecond),
			ArchiveThresholdDays: int(schema.DefaultArchiveThreshold / (24 * time.Hour)),
			SweepIntervalMinutes: int(schema.DefaultSweepInterval / time.Minute),
			RecentlyClosedCap:    schema.DefaultRecentlyClosedCap,
			DefaultWindow:        GeometryConfig{X: 80, Y: 80, Width: 1280, Height: 800},
		},
		Browser: BrowserConfig{
			ExecPath:   "",
			Headless:   false,
			ProfileDir: filepath.Join(home, ".loom", "profiles"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Mode:  "console",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".loom", "config.yaml"), nil
}

// EngineConfig converts the file representation into the engine's config.
func (c Config) EngineConfig() schema.EngineConfig {
	return schema.EngineConfig{
		StatePath:         filepath.Join(c.StateDir, "state.db"),
		FlushInterval:     time.Duration(c.Engine.FlushIntervalMS) * time.Millisecond,
		DebounceWindow:    time.Duration(c.Engine.DebounceWindowMS) * time.Millisecond,
		ArchiveThreshold:  time.Duration(c.Engine.ArchiveThresholdDays) * 24 * time.Hour,
		SweepInterval:     time.Duration(c.Engine.SweepIntervalMinutes) * time.Minute,
		RecentlyClosedCap: c.Engine.RecentlyClosedCap,
		DefaultGeometry: schema.WindowGeometry{
			X:      c.Engine.DefaultWindow.X,
			Y:      c.Engine.DefaultWindow.Y,
			Width:  c.Engine.DefaultWindow.Width,
			Height: c.Engine.DefaultWindow.Height,
		},
	}
}
