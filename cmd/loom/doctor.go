package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/loom/core"
	"pkt.systems/loom/internal/appconfig"
	"pkt.systems/loom/internal/pageview"
	"pkt.systems/loom/internal/persist"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var skipBrowser bool
	var browserTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run loom diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			if err := checkStateDir(cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "dir", cfg.StateDir)

			if err := checkStorage(cfg); err != nil {
				return err
			}
			logger.Info("doctor storage ok", "path", filepath.Join(cfg.StateDir, "state.db"))

			if skipBrowser {
				logger.Info("doctor browser check skipped")
				logger.Info("doctor complete")
				return nil
			}
			if err := checkBrowser(cmd.Context(), cfg, logger, browserTimeout); err != nil {
				return err
			}
			logger.Info("doctor browser ok")
			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&skipBrowser, "skip-browser", false, "skip the browser launch check")
	cmd.Flags().DurationVar(&browserTimeout, "browser-timeout", 30*time.Second, "timeout for the browser launch check")
	return cmd
}

func checkStateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state dir %q: %w", dir, err)
	}
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("state dir %q not writable: %w", dir, err)
	}
	return os.Remove(probe)
}

func checkStorage(cfg appconfig.Config) error {
	db, err := persist.Open(filepath.Join(cfg.StateDir, "state.db"))
	if err != nil {
		return fmt.Errorf("doctor storage open: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := persist.RunMigrations(db); err != nil {
		return fmt.Errorf("doctor storage migrate: %w", err)
	}
	return nil
}

func checkBrowser(ctx context.Context, cfg appconfig.Config, logger pslog.Logger, timeout time.Duration) error {
	if execPath := strings.TrimSpace(cfg.Browser.ExecPath); execPath != "" {
		if _, err := os.Stat(execPath); err != nil {
			return fmt.Errorf("doctor browser exec_path %q: %w", execPath, err)
		}
	}
	profileDir, err := os.MkdirTemp("", "loom-doctor-*")
	if err != nil {
		return fmt.Errorf("doctor browser profile dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(profileDir) }()

	// Doctor always runs headless; it must work on machines without a
	// display.
	factory := pageview.NewFactory(pageview.Config{
		ExecPath:   cfg.Browser.ExecPath,
		Headless:   true,
		ProfileDir: profileDir,
	}, logger)
	defer factory.Close()

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	view, err := factory.NewPageView(runCtx, core.PageViewOptions{
		ProfileID: "doctor",
		URL:       "about:blank",
	})
	if err != nil {
		return fmt.Errorf("doctor browser launch: %w", err)
	}
	defer func() { _ = view.Destroy() }()
	if _, _, err := view.NavigationHistory(); err != nil {
		return fmt.Errorf("doctor browser navigation: %w", err)
	}
	return nil
}
