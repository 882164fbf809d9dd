package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/idxrun/idxrun/internal/logger"
)

// DefaultSentinelExitCode is returned by the runner when the lock is
// already held. 75 is EX_TEMPFAIL: "try again later", which is exactly
// what an overlapping schedule should do.
const DefaultSentinelExitCode = 75

// Config is the top-level TOML structure.
type Config struct {
	LockFile          string   `toml:"lockfile" mapstructure:"lockfile"`
	LogDir            string   `toml:"log_dir" mapstructure:"log_dir"`
	SentinelExitCode  int      `toml:"sentinel_exit_code" mapstructure:"sentinel_exit_code"`
	StaleLockTakeover bool     `toml:"stale_lock_takeover" mapstructure:"stale_lock_takeover"`
	Env               []string `toml:"env" mapstructure:"env"`
	EnvFiles          []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv          bool     `toml:"use_os_env" mapstructure:"use_os_env"`

	Job      JobConfig       `toml:"job" mapstructure:"job"`
	Archive  ArchiveConfig   `toml:"archive" mapstructure:"archive"`
	History  *HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  *MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Server   *ServerConfig   `toml:"server" mapstructure:"server"`
	Schedule *ScheduleConfig `toml:"schedule" mapstructure:"schedule"`
	SelfLog  *logger.Config  `toml:"selflog" mapstructure:"selflog"`
}

// JobConfig describes the wrapped indexing job. ConfigPath and SourceRoot
// are exported to the job as CONFIG_PATH and SOURCE_ROOT.
type JobConfig struct {
	Command      string   `toml:"command" mapstructure:"command"`
	WorkDir      string   `toml:"workdir" mapstructure:"workdir"`
	ConfigPath   string   `toml:"config_path" mapstructure:"config_path"`
	SourceRoot   string   `toml:"source_root" mapstructure:"source_root"`
	Env          []string `toml:"env" mapstructure:"env"`
	IndexCommand string   `toml:"index_command" mapstructure:"index_command"`
	Branch       string   `toml:"branch" mapstructure:"branch"`
}

// ArchiveConfig selects the archive sink. Exactly one of Command or S3
// must be set when archiving is enabled; an empty section disables it.
type ArchiveConfig struct {
	Label   string    `toml:"label" mapstructure:"label"`
	Command string    `toml:"command" mapstructure:"command"`
	S3      *S3Config `toml:"s3" mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `toml:"access_key" mapstructure:"access_key"`
	SecretKey string `toml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `toml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `toml:"use_ssl" mapstructure:"use_ssl"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// ScheduleConfig enables daemon mode: "@every <duration>" or a bare
// duration such as "30m".
type ScheduleConfig struct {
	Every string `toml:"every" mapstructure:"every"`
}

// Load reads and validates the TOML config at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	// The wrapper behaves like a shell script: the job inherits the OS
	// environment unless explicitly isolated.
	v.SetDefault("use_os_env", true)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.SentinelExitCode == 0 {
		c.SentinelExitCode = DefaultSentinelExitCode
	}
	if c.Archive.Label == "" {
		c.Archive.Label = "xref-index"
	}
	if c.Job.Branch == "" {
		c.Job.Branch = "master"
	}
}

// Validate enforces the invariants the runner depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LockFile) == "" {
		return fmt.Errorf("config: lockfile is required")
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return fmt.Errorf("config: log_dir is required")
	}
	if strings.TrimSpace(c.Job.Command) == "" {
		return fmt.Errorf("config: job.command is required")
	}
	if c.SentinelExitCode < 1 || c.SentinelExitCode > 255 {
		return fmt.Errorf("config: sentinel_exit_code %d out of range 1..255", c.SentinelExitCode)
	}
	if c.Archive.Command != "" && c.Archive.S3 != nil {
		return fmt.Errorf("config: archive.command and archive.s3 are mutually exclusive")
	}
	if s3 := c.Archive.S3; s3 != nil {
		if s3.Endpoint == "" || s3.Bucket == "" {
			return fmt.Errorf("config: archive.s3 requires endpoint and bucket")
		}
	}
	if c.Schedule != nil {
		if _, err := ParseEvery(c.Schedule.Every); err != nil {
			return fmt.Errorf("config: schedule.every: %w", err)
		}
	}
	return nil
}

// ParseEvery accepts "@every 30m" or a bare duration string.
func ParseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimSpace(strings.TrimPrefix(expr, "@every"))
	if expr == "" {
		return 0, fmt.Errorf("empty schedule")
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule must be > 0, got %s", d)
	}
	return d, nil
}

// GlobalEnvPairs merges env_files contents with the top-level env list;
// the env list wins. Pairs feed the env.Set the runner composes from.
func (c *Config) GlobalEnvPairs() ([]string, error) {
	m := make(map[string]string)
	order := make([]string, 0)
	add := func(k, v string) {
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			if i := strings.IndexByte(kv, '='); i > 0 {
				add(kv[:i], kv[i+1:])
			}
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			add(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; # comments and blanks are ignored.
func loadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}

// JobEnv returns the per-job override pairs, with CONFIG_PATH and
// SOURCE_ROOT appended last so they always win.
func (c *Config) JobEnv() []string {
	pairs := append([]string(nil), c.Job.Env...)
	if c.Job.ConfigPath != "" {
		pairs = append(pairs, "CONFIG_PATH="+c.Job.ConfigPath)
	}
	if c.Job.SourceRoot != "" {
		pairs = append(pairs, "SOURCE_ROOT="+c.Job.SourceRoot)
	}
	return pairs
}
