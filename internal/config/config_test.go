package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idxrun.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
lockfile = "/tmp/idxrun.lock"
log_dir = "/tmp/idxrun-logs"

[job]
command = "idxrun update"
config_path = "/srv/xref/config"
source_root = "/srv/xref/sources"
`

func TestLoadMinimal(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.SentinelExitCode != DefaultSentinelExitCode {
		t.Fatalf("sentinel = %d, want default %d", c.SentinelExitCode, DefaultSentinelExitCode)
	}
	if c.Archive.Label != "xref-index" {
		t.Fatalf("default label = %q", c.Archive.Label)
	}
	if c.Job.Branch != "master" {
		t.Fatalf("default branch = %q", c.Job.Branch)
	}
	if !c.UseOSEnv {
		t.Fatalf("use_os_env should default to true")
	}
}

func TestLoadFullSections(t *testing.T) {
	c, err := Load(writeConfig(t, minimal+`
sentinel_exit_code = 99
stale_lock_takeover = true
use_os_env = true
env = ["A=1"]

[archive]
label = "nightly"
command = "archive-log nightly"

[history]
dsn = "sqlite:///tmp/history.db"

[metrics]
enabled = true
listen = ":9102"

[server]
listen = ":8080"
base_path = "/api"

[schedule]
every = "@every 30m"

[selflog]
dir = "/tmp/selflog"
level = "debug"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.SentinelExitCode != 99 || !c.StaleLockTakeover {
		t.Fatalf("top-level fields not parsed: %+v", c)
	}
	if c.Archive.Command != "archive-log nightly" || c.Archive.Label != "nightly" {
		t.Fatalf("archive not parsed: %+v", c.Archive)
	}
	if c.History == nil || c.History.DSN != "sqlite:///tmp/history.db" {
		t.Fatalf("history not parsed: %+v", c.History)
	}
	if c.Server == nil || c.Server.BasePath != "/api" {
		t.Fatalf("server not parsed: %+v", c.Server)
	}
	if c.SelfLog == nil || c.SelfLog.Level != "debug" {
		t.Fatalf("selflog not parsed: %+v", c.SelfLog)
	}
	d, err := ParseEvery(c.Schedule.Every)
	if err != nil || d != 30*time.Minute {
		t.Fatalf("schedule = %v, %v", d, err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []string{
		`log_dir = "/x"` + "\n[job]\ncommand = \"c\"\n",
		`lockfile = "/x"` + "\n[job]\ncommand = \"c\"\n",
		`lockfile = "/x"` + "\nlog_dir = \"/y\"\n",
	}
	for i, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestValidateRejectsConflictingArchive(t *testing.T) {
	_, err := Load(writeConfig(t, minimal+`
[archive]
command = "c"
  [archive.s3]
  endpoint = "localhost:9000"
  bucket = "logs"
`))
	if err == nil {
		t.Fatalf("expected error for command+s3")
	}
}

func TestParseEvery(t *testing.T) {
	if d, err := ParseEvery("@every 5s"); err != nil || d != 5*time.Second {
		t.Fatalf("@every 5s = %v, %v", d, err)
	}
	if d, err := ParseEvery("30m"); err != nil || d != 30*time.Minute {
		t.Fatalf("30m = %v, %v", d, err)
	}
	if _, err := ParseEvery("* * * * *"); err == nil {
		t.Fatalf("expected error for cron expression")
	}
	if _, err := ParseEvery("-1s"); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestGlobalEnvPairsPrecedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "extra.env")
	if err := os.WriteFile(envFile, []byte("# comment\nA=file\nB=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	c := &Config{Env: []string{"A=toml"}, EnvFiles: []string{envFile}}
	pairs, err := c.GlobalEnvPairs()
	if err != nil {
		t.Fatalf("global env: %v", err)
	}
	if !slices.Contains(pairs, "A=toml") || !slices.Contains(pairs, "B=file") {
		t.Fatalf("pairs = %v", pairs)
	}
}

func TestJobEnvExportsWellKnownVars(t *testing.T) {
	c := &Config{Job: JobConfig{
		ConfigPath: "/srv/xref/config",
		SourceRoot: "/srv/xref/sources",
		Env:        []string{"EXTRA=1"},
	}}
	pairs := c.JobEnv()
	want := []string{"EXTRA=1", "CONFIG_PATH=/srv/xref/config", "SOURCE_ROOT=/srv/xref/sources"}
	if !slices.Equal(pairs, want) {
		t.Fatalf("job env = %v, want %v", pairs, want)
	}
}
