package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/loom"
	"pkt.systems/loom/internal/appconfig"
	"pkt.systems/loom/internal/host"
	"pkt.systems/loom/internal/pageview"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var headless bool
	var noRestore bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the loom engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := configuredLogger(cfg.Logging)
			if headless {
				cfg.Browser.Headless = true
			}
			if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
				return fmt.Errorf("state dir %q: %w", cfg.StateDir, err)
			}

			views := pageview.NewFactory(pageview.Config{
				ExecPath:   cfg.Browser.ExecPath,
				Headless:   cfg.Browser.Headless,
				ProfileDir: cfg.Browser.ProfileDir,
			}, logger)
			defer views.Close()

			opts := []loom.ShellOption{loom.WithEventBus()}
			if !noRestore {
				opts = append(opts, loom.WithSessionRestore())
			}
			shell, err := loom.New(loom.ShellConfig{Engine: cfg.EngineConfig()}, loom.ShellDeps{
				Profiles:  host.NewProfiles(cfg.Browser.ProfileDir, logger),
				Spaces:    host.NewSpaces(nil),
				Windows:   host.NewRegistry(logger),
				PageViews: views,
				Logger:    logger,
			}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = pslog.ContextWithLogger(ctx, logger)

			watchPath := cfgPath
			if strings.TrimSpace(watchPath) == "" {
				watchPath, err = appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			// Engine timings are fixed at startup; a reload only takes
			// effect on the next serve.
			if err := appconfig.Watch(ctx, watchPath, logger, func(next appconfig.Config) {
				logger.Info("config reloaded", "path", watchPath,
					"flush_interval_ms", next.Engine.FlushIntervalMS,
					"debounce_window_ms", next.Engine.DebounceWindowMS)
			}); err != nil {
				logger.Warn("config watch unavailable", "err", err)
			}

			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := shell.Stop(stopCtx); err != nil {
					logger.Warn("engine stop failed", "err", err)
				}
			}()
			logger.Info("engine starting", "state_dir", cfg.StateDir, "headless", cfg.Browser.Headless, "restore", !noRestore)
			if err := shell.Start(ctx); err != nil {
				return err
			}
			return shell.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")
	cmd.Flags().BoolVar(&noRestore, "no-restore", false, "skip session restore at startup")
	return cmd
}

func configuredLogger(cfg appconfig.LoggingConfig) pslog.Logger {
	return pslog.NewWithOptions(os.Stderr, pslog.Options{
		Mode:     logMode(cfg.Mode),
		MinLevel: logLevel(cfg.Level),
	})
}

func logMode(mode string) pslog.Mode {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json", "structured":
		return pslog.ModeStructured
	default:
		return pslog.ModeConsole
	}
}

func logLevel(level string) pslog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pslog.TraceLevel
	case "debug":
		return pslog.DebugLevel
	case "warn", "warning":
		return pslog.WarnLevel
	case "error":
		return pslog.ErrorLevel
	default:
		return pslog.InfoLevel
	}
}
