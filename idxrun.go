// Package idxrun wraps a source indexing job with single-instance
// semantics: an exclusion lock, a timestamped run log, archival of that
// log, and optional run history, metrics and a status API. This package is
// a thin public facade over the internal packages for embedders; the
// idxrun command wires the same pieces.
package idxrun

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/idxrun/idxrun/internal/archive"
	cfg "github.com/idxrun/idxrun/internal/config"
	"github.com/idxrun/idxrun/internal/env"
	"github.com/idxrun/idxrun/internal/history"
	"github.com/idxrun/idxrun/internal/history/factory"
	"github.com/idxrun/idxrun/internal/lockfile"
	"github.com/idxrun/idxrun/internal/metrics"
	"github.com/idxrun/idxrun/internal/runner"
	iapi "github.com/idxrun/idxrun/internal/server"
	"github.com/idxrun/idxrun/internal/updater"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Runner = runner.Runner

type Result = runner.Result

type HistorySink = history.Sink

type Updater = updater.Updater

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewRunner builds a ready-to-run Runner from the config: lock, merged
// job environment, archive sink and history sink. The returned close
// function releases the history backend and may be nil-safe called.
func NewRunner(c *Config) (*Runner, func(), error) {
	global, err := c.GlobalEnvPairs()
	if err != nil {
		return nil, nil, err
	}
	es := env.New(c.UseOSEnv)
	es.SetAll(global)
	merged := es.Merge(c.JobEnv())

	var sink archive.Sink
	if c.Archive.Command != "" || c.Archive.S3 != nil {
		var obj *archive.ObjectConfig
		if s3 := c.Archive.S3; s3 != nil {
			obj = &archive.ObjectConfig{
				Endpoint:  s3.Endpoint,
				AccessKey: s3.AccessKey,
				SecretKey: s3.SecretKey,
				Bucket:    s3.Bucket,
				UseSSL:    s3.UseSSL,
			}
		}
		sink, err = archive.NewSink(c.Archive.Command, merged, obj)
		if err != nil {
			return nil, nil, err
		}
	}

	var hist history.Sink
	closeFn := func() {}
	if c.History != nil && c.History.DSN != "" {
		hist, err = factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, nil, err
		}
		if closer, ok := hist.(interface{ Close() error }); ok {
			closeFn = func() { _ = closer.Close() }
		}
	}

	r := &Runner{
		Lock:             &lockfile.Lock{Path: c.LockFile, TakeoverStale: c.StaleLockTakeover},
		LogDir:           c.LogDir,
		Job:              c.Archive.Label,
		Command:          c.Job.Command,
		WorkDir:          c.Job.WorkDir,
		Env:              merged,
		Label:            c.Archive.Label,
		Archive:          sink,
		History:          hist,
		SentinelExitCode: c.SentinelExitCode,
	}
	return r, closeFn, nil
}

// NewUpdater builds the indexing job from the config's [job] section.
func NewUpdater(c *Config) *Updater {
	global, _ := c.GlobalEnvPairs()
	es := env.New(c.UseOSEnv)
	es.SetAll(global)
	return &Updater{
		ConfigDir:    c.Job.ConfigPath,
		SourceRoot:   c.Job.SourceRoot,
		Branch:       c.Job.Branch,
		IndexCommand: c.Job.IndexCommand,
		Env:          es.Merge(c.JobEnv()),
	}
}

// NewHTTPServer starts the status API server on addr.
func NewHTTPServer(addr, basePath, lockPath string, store iapi.RecentStore) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(lockPath, store, basePath))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
