package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/idxrun/idxrun"
	"github.com/idxrun/idxrun/internal/config"
	"github.com/idxrun/idxrun/internal/history"
	"github.com/idxrun/idxrun/internal/lockfile"
	"github.com/idxrun/idxrun/internal/logger"
	"github.com/idxrun/idxrun/internal/schedule"
	"github.com/idxrun/idxrun/internal/server"
	"github.com/idxrun/idxrun/internal/sourcemap"
	"github.com/idxrun/idxrun/internal/updater"
)

func loadConfig(flags *GlobalFlags) (*idxrun.Config, error) {
	if flags.ConfigPath == "" {
		return nil, fmt.Errorf("config file required, use --config=idxrun.toml")
	}
	return idxrun.LoadConfig(flags.ConfigPath)
}

func setupLogging(cfg *idxrun.Config) func() {
	if cfg.SelfLog != nil {
		return logger.Setup(*cfg.SelfLog)
	}
	return logger.Setup(logger.Config{})
}

func runRun(flags *GlobalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := idxrun.RegisterMetricsDefault(); err != nil {
			slog.Warn("failed to register metrics", "error", err)
		}
	}

	r, closeHist, err := idxrun.NewRunner(cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	res, err := r.Run(context.Background())
	if err != nil && !errors.Is(err, lockfile.ErrHeld) {
		return err
	}
	if res.ExitCode != 0 {
		return exitError{code: res.ExitCode}
	}
	return nil
}

func runUpdate(flags *GlobalFlags) error {
	var u *idxrun.Updater
	if flags.ConfigPath != "" {
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}
		closeLog := setupLogging(cfg)
		defer closeLog()
		u = idxrun.NewUpdater(cfg)
	} else {
		// Standalone mode: the surrounding wrapper exports these.
		configDir := os.Getenv("CONFIG_PATH")
		sourceRoot := os.Getenv("SOURCE_ROOT")
		if configDir == "" || sourceRoot == "" {
			return fmt.Errorf("CONFIG_PATH and SOURCE_ROOT must be set when no --config is given")
		}
		closeLog := logger.Setup(logger.Config{})
		defer closeLog()
		u = &updater.Updater{ConfigDir: configDir, SourceRoot: sourceRoot, Branch: "master"}
	}

	sum, err := u.Run(context.Background())
	if err != nil {
		return err
	}
	slog.Info("update sweep complete", "total", sum.Total, "updated", sum.Updated, "failed", sum.Failed)
	if sum.Failed > 0 {
		return exitError{code: 1}
	}
	return nil
}

func runStatus(flags *GlobalFlags, out io.Writer) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	if holder, err := lockfile.ReadHolder(cfg.LockFile); err == nil {
		_, _ = fmt.Fprintf(out, "locked: yes (pid %d, since %s)\n",
			holder.PID, time.Unix(holder.StartUnix, 0).Format(time.RFC3339))
	} else {
		_, _ = fmt.Fprintln(out, "locked: no")
	}

	if cfg.History == nil || cfg.History.DSN == "" {
		_, _ = fmt.Fprintln(out, "history: not configured")
		return nil
	}
	sink, err := history.NewSQLSink(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = sink.Close() }()

	recs, err := sink.Recent(context.Background(), 5)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(out, "history: no finished runs recorded")
		return nil
	}
	for _, rec := range recs {
		_, _ = fmt.Fprintf(out, "%s exit=%d log=%s\n",
			rec.FinishedAt.Format(time.RFC3339), rec.ExitCode, rec.LogPath)
	}
	return nil
}

func runServe(flags *GlobalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.Schedule == nil {
		return fmt.Errorf("serve requires a [schedule] section")
	}
	every, err := config.ParseEvery(cfg.Schedule.Every)
	if err != nil {
		return err
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := idxrun.RegisterMetricsDefault(); err != nil {
			slog.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := idxrun.ServeMetrics(cfg.Metrics.Listen); err != nil {
					slog.Error("metrics listener stopped", "error", err)
				}
			}()
		}
	}

	r, closeHist, err := idxrun.NewRunner(cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	if cfg.Server != nil && cfg.Server.Listen != "" {
		var store server.RecentStore
		if s, ok := r.History.(server.RecentStore); ok {
			store = s
		}
		srv := idxrun.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, cfg.LockFile, store)
		defer func() { _ = srv.Close() }()
		slog.Info("status API listening", "addr", cfg.Server.Listen, "base", cfg.Server.BasePath)
	}

	sched, err := schedule.New(every, func(ctx context.Context) {
		if _, err := r.Run(ctx); err != nil && !errors.Is(err, lockfile.ErrHeld) {
			slog.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	slog.Info("scheduler started", "every", every)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())
	sched.Stop()
	return nil
}

func runValidate(flags *GlobalFlags, out io.Writer) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "config: ok")

	mapPath := filepath.Join(cfg.Job.ConfigPath, updater.MapFile)
	if cfg.Job.ConfigPath == "" {
		_, _ = fmt.Fprintln(out, "sourcemap: skipped (job.config_path not set)")
		return nil
	}
	entries, err := sourcemap.Load(mapPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintf(out, "sourcemap: %s not present yet\n", mapPath)
			return nil
		}
		return fmt.Errorf("sourcemap: %w", err)
	}
	_, _ = fmt.Fprintf(out, "sourcemap: ok (%d repositories)\n", len(entries))
	return nil
}
