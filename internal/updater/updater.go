// Package updater refreshes the git checkouts named by the repository map
// and then rebuilds the index. It is the job that normally runs inside the
// single-instance wrapper.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/idxrun/idxrun/internal/gitrepo"
	"github.com/idxrun/idxrun/internal/metrics"
	"github.com/idxrun/idxrun/internal/runner"
	"github.com/idxrun/idxrun/internal/sourcemap"
)

// MapFile is the repository map's file name inside the config checkout.
const MapFile = "sourcemap"

// Updater describes one update sweep.
type Updater struct {
	ConfigDir    string // git checkout holding the repository map
	SourceRoot   string // parent directory of all managed checkouts
	Branch       string // branch forced on every checkout
	IndexCommand string // run after the sweep; empty skips indexing
	Env          []string
}

// Summary counts the outcome of one sweep.
type Summary struct {
	Total   int
	Updated int
	Failed  int
}

// Run refreshes the config checkout, sweeps every mapped repository and
// finally rebuilds the index. Per-repository failures are logged and
// counted but do not abort the sweep; a config or index failure does.
func (u *Updater) Run(ctx context.Context) (Summary, error) {
	slog.Info("loading repository map", "config", u.ConfigDir)
	entries, err := u.loadEntries(ctx)
	if err != nil {
		return Summary{}, err
	}
	slog.Info("repository map loaded", "repositories", len(entries))

	sum := u.sweep(ctx, entries)
	metrics.AddReposUpdated(sum.Updated)
	metrics.AddReposFailed(sum.Failed)

	if err := u.runIndex(ctx); err != nil {
		return sum, err
	}
	return sum, nil
}

// loadEntries brings the config checkout up to date and parses the map.
func (u *Updater) loadEntries(ctx context.Context) ([]sourcemap.Entry, error) {
	repo := gitrepo.Open(u.ConfigDir)
	if err := repo.FetchAll(ctx); err != nil {
		return nil, fmt.Errorf("refresh config checkout: %w", err)
	}
	if err := repo.RemoteCheckout(ctx, u.Branch); err != nil {
		return nil, fmt.Errorf("refresh config checkout: %w", err)
	}
	return sourcemap.Load(filepath.Join(u.ConfigDir, MapFile))
}

func (u *Updater) sweep(ctx context.Context, entries []sourcemap.Entry) Summary {
	sum := Summary{Total: len(entries)}
	for _, e := range entries {
		dest := filepath.Join(u.SourceRoot, e.Name)
		var err error
		if _, statErr := os.Stat(dest); statErr == nil {
			slog.Info("updating repository", "name", e.Name)
			err = u.update(ctx, dest, e.URL)
		} else {
			slog.Info("initializing repository", "name", e.Name, "url", e.URL)
			err = gitrepo.Clone(ctx, e.URL, dest)
		}
		if err != nil {
			sum.Failed++
			slog.Error("repository refresh failed", "name", e.Name, "error", err)
			continue
		}
		sum.Updated++
	}
	return sum
}

// update brings an existing checkout to the remote branch head, repointing
// origin first so renamed upstreams keep working.
func (u *Updater) update(ctx context.Context, dest, url string) error {
	repo := gitrepo.Open(dest)
	if err := repo.SetRemoteURL(ctx, url); err != nil {
		return err
	}
	if err := repo.FetchAll(ctx); err != nil {
		return err
	}
	return repo.RemoteCheckout(ctx, u.Branch)
}

func (u *Updater) runIndex(ctx context.Context) error {
	if u.IndexCommand == "" {
		return nil
	}
	slog.Info("running index build", "command", u.IndexCommand)
	cmd := runner.BuildCommand(ctx, u.IndexCommand)
	cmd.Dir = u.SourceRoot
	cmd.Env = u.Env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("index build: %w", err)
	}
	slog.Info("index build finished")
	return nil
}
