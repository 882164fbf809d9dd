// Package runner executes the indexing job under a host-wide exclusion
// lock. A run produces a timestamped log file containing exactly the job's
// combined stdout and stderr, which is handed to the archive sink once the
// job finishes. The lock is released on every exit path.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/idxrun/idxrun/internal/archive"
	"github.com/idxrun/idxrun/internal/history"
	"github.com/idxrun/idxrun/internal/lockfile"
	"github.com/idxrun/idxrun/internal/metrics"
)

// logNameLayout names run logs after their start time.
const logNameLayout = "2006-01-02_15.04.05"

// spawnExitCode is reported when the job command cannot be started at all,
// matching what a shell reports for a missing command.
const spawnExitCode = 127

// Runner wraps one external job with single-instance semantics.
type Runner struct {
	Lock    *lockfile.Lock
	LogDir  string
	Job     string // history record name
	Command string
	WorkDir string
	Env     []string // fully merged environment for the job
	Label   string
	Archive archive.Sink // optional
	History history.Sink // optional

	// SentinelExitCode is returned in Result when the lock is already
	// held. Zero means the caller did not configure one.
	SentinelExitCode int
}

// Result describes one finished (or rejected) run.
type Result struct {
	ExitCode   int
	LogPath    string
	StartedAt  time.Time
	FinishedAt time.Time
	Rejected   bool
	ArchiveErr error
}

// Run performs a single run: acquire the lock, execute the job with its
// output captured to a fresh log file, archive the log, release the lock.
// When another instance holds the lock it returns immediately with
// lockfile.ErrHeld and the sentinel exit code; nothing is executed and no
// log file is created.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.Lock.Acquire(); err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			metrics.IncRejected()
			slog.Warn("another instance is running, refusing to start", "lockfile", r.Lock.Path)
			return Result{ExitCode: r.SentinelExitCode, Rejected: true}, err
		}
		return Result{ExitCode: r.SentinelExitCode}, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		if err := r.Lock.Release(); err != nil {
			slog.Error("failed to remove lockfile, remove it manually before the next run",
				"lockfile", r.Lock.Path, "error", err)
		}
	}()
	return r.locked(ctx)
}

// locked runs the job while the lock is held.
func (r *Runner) locked(ctx context.Context) (Result, error) {
	started := time.Now()
	res := Result{StartedAt: started}

	if err := os.MkdirAll(r.LogDir, 0o750); err != nil {
		return res, fmt.Errorf("create log dir: %w", err)
	}
	res.LogPath = filepath.Join(r.LogDir, "run_"+started.Format(logNameLayout)+".log")
	logFile, err := os.OpenFile(res.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return res, fmt.Errorf("create run log: %w", err)
	}

	cmd := BuildCommand(ctx, r.Command)
	cmd.Dir = r.WorkDir
	cmd.Env = r.Env
	// Both streams share one descriptor so the kernel interleaves them the
	// same way 2>&1 would.
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	slog.Info("starting run", "command", r.Command, "log", res.LogPath)
	var exitErr string
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		res.ExitCode = spawnExitCode
		res.FinishedAt = time.Now()
		exitErr = err.Error()
		slog.Error("failed to start job", "error", err)
	} else {
		r.sendHistory(ctx, history.EventStart, history.Record{
			Job:       r.Job,
			PID:       cmd.Process.Pid,
			StartedAt: started,
			LogPath:   res.LogPath,
		})
		waitErr := cmd.Wait()
		_ = logFile.Close()
		res.FinishedAt = time.Now()
		if waitErr != nil {
			var ee *exec.ExitError
			if errors.As(waitErr, &ee) {
				res.ExitCode = ee.ExitCode()
			} else {
				res.ExitCode = spawnExitCode
			}
			exitErr = waitErr.Error()
		}
		res.ArchiveErr = r.archiveLog(ctx, res.LogPath)
	}

	r.sendHistory(ctx, history.EventFinish, history.Record{
		Job:        r.Job,
		PID:        pidOf(cmd),
		StartedAt:  started,
		FinishedAt: res.FinishedAt,
		ExitCode:   res.ExitCode,
		LogPath:    res.LogPath,
		ExitErr:    exitErr,
	})
	metrics.RecordRun(res.ExitCode, res.FinishedAt.Sub(started).Seconds(), res.FinishedAt.Unix())
	slog.Info("run finished", "exit_code", res.ExitCode, "duration", res.FinishedAt.Sub(started))
	return res, nil
}

// archiveLog hands the finished log to the sink. Failures never change the
// run's exit code.
func (r *Runner) archiveLog(ctx context.Context, logPath string) error {
	if r.Archive == nil {
		return nil
	}
	if err := r.Archive.Store(ctx, r.Label, logPath); err != nil {
		metrics.IncArchiveFailure()
		slog.Warn("failed to archive run log", "log", logPath, "label", r.Label, "error", err)
		return err
	}
	return nil
}

func (r *Runner) sendHistory(ctx context.Context, t history.EventType, rec history.Record) {
	if r.History == nil {
		return
	}
	e := history.Event{Type: t, OccurredAt: time.Now(), Record: rec}
	if err := r.History.Send(ctx, e); err != nil {
		slog.Warn("failed to record run history", "type", string(t), "error", err)
	}
}

func pidOf(cmd *exec.Cmd) int {
	if cmd.Process != nil {
		return cmd.Process.Pid
	}
	return 0
}
