// Package config parses the trainer's process configuration from flags and
// environment variables. Flags take precedence over the environment, which
// takes precedence over defaults.
//
// Source-specific settings are passed as key/value pairs, either with
// repeated -source-opt key=value flags or SOURCE_* environment variables
// (SOURCE_RECORDS_PATH becomes recordsPath). Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/courtcast/pkg/artifacts"
	"github.com/HatiCode/courtcast/pkg/tls"
)

// Config holds all trainer configuration.
type Config struct {
	LogFormat string
	LogLevel  string

	// ConfigFile is the tuning file; empty uses $COURTCAST_CONFIG or defaults.
	ConfigFile string

	Source        string
	SourceConfig  map[string]string
	SourceTimeout time.Duration
	TLS           tls.Config

	Store  artifacts.StoreConfig
	DryRun bool

	// Summary is where the JSON run summary goes: a path, "-" for stdout,
	// or empty to skip it.
	Summary string

	Pushgateway string
	Job         string

	Timeout time.Duration
	// Strict makes any failed target fail the run.
	Strict bool
}

// ParseFlags parses os.Args and exits on invalid input.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:], os.Environ())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
	return cfg
}

// Parse parses args with fallbacks from environ ("KEY=value" pairs) and
// validates the result. The process environment is never read directly, so
// callers pass os.Environ() for the usual behaviour.
func Parse(args, environ []string) (*Config, error) {
	cfg := &Config{SourceConfig: sourceConfigFromEnv(environ)}
	e := newEnv(environ)
	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)

	fs.StringVar(&cfg.LogFormat, "log-format", e.get("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", e.get("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ConfigFile, "config", e.get("CONFIG_FILE", ""), "Tuning configuration YAML file")

	fs.StringVar(&cfg.Source, "source", e.get("SOURCE", "csv"), "Game-log source: csv or http")
	fs.Func("input", "CSV game-log file (shorthand for -source-opt path=...)", func(v string) error {
		cfg.SourceConfig["path"] = v
		return nil
	})
	fs.Func("source-opt", "Source setting as key=value (repeatable)", func(v string) error {
		key, val, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return fmt.Errorf("want key=value, got %q", v)
		}
		cfg.SourceConfig[key] = val
		return nil
	})
	fs.DurationVar(&cfg.SourceTimeout, "source-timeout", e.getDuration("SOURCE_TIMEOUT", 30*time.Second), "HTTP source request timeout")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", e.getBool("TLS_ENABLED", false), "Use TLS for the HTTP source")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", e.get("TLS_CERT_FILE", ""), "Client certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", e.get("TLS_KEY_FILE", ""), "Client private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", e.get("TLS_CA_FILE", ""), "CA file for verifying the source")

	fs.StringVar(&cfg.Store.Backend, "store", e.get("STORE", artifacts.BackendFile), "Artifact store: file or redis")
	fs.StringVar(&cfg.Store.Dir, "artifact-dir", e.get("ARTIFACT_DIR", "./artifacts"), "Artifact directory for the file store")
	fs.StringVar(&cfg.Store.RedisAddr, "redis-addr", e.get("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.Store.RedisPassword, "redis-password", e.get("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.Store.RedisDB, "redis-db", e.getInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.Store.RedisTTL, "redis-ttl", e.getDuration("REDIS_TTL", 0), "Artifact TTL in Redis (0 keeps them)")
	fs.BoolVar(&cfg.DryRun, "dry-run", e.getBool("DRY_RUN", false), "Train and report without persisting artifacts")

	fs.StringVar(&cfg.Summary, "summary", e.get("SUMMARY", "-"), "Run summary destination: file path, - for stdout, empty to skip")
	fs.StringVar(&cfg.Pushgateway, "pushgateway", e.get("PUSHGATEWAY_URL", ""), "Prometheus Pushgateway URL (empty disables)")
	fs.StringVar(&cfg.Job, "job", e.get("JOB", "courtcast-trainer"), "Pushgateway job name")

	fs.DurationVar(&cfg.Timeout, "timeout", e.getDuration("TIMEOUT", time.Hour), "Overall run timeout")
	fs.BoolVar(&cfg.Strict, "strict", e.getBool("STRICT", false), "Fail the run when any target fails")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Source {
	case "csv":
		if c.SourceConfig["path"] == "" {
			return errors.New("csv source requires -input or SOURCE_PATH")
		}
	case "http":
		if c.SourceConfig["url"] == "" {
			return errors.New("http source requires a url source option")
		}
	default:
		return fmt.Errorf("invalid source %q (must be csv or http)", c.Source)
	}
	if !c.DryRun {
		switch c.Store.Backend {
		case artifacts.BackendFile:
			if c.Store.Dir == "" {
				return errors.New("artifact-dir is required for the file store")
			}
		case artifacts.BackendRedis:
			if c.Store.RedisAddr == "" {
				return errors.New("redis-addr is required for the redis store")
			}
		default:
			return fmt.Errorf("invalid store %q (must be file or redis)", c.Store.Backend)
		}
	}
	if c.Pushgateway != "" && c.Job == "" {
		return errors.New("job is required when pushing metrics")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return c.TLS.Validate()
}

// sourceConfigFromEnv collects SOURCE_* variables into a map keyed in lower
// camel case. SOURCE_TIMEOUT is a flag fallback, not a source option.
func sourceConfigFromEnv(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "SOURCE_") || key == "SOURCE_TIMEOUT" {
			continue
		}
		if name := toLowerCamelCase(strings.TrimPrefix(key, "SOURCE_")); name != "" {
			out[name] = val
		}
	}
	return out
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

// env is a lookup over "KEY=value" pairs. Later pairs win.
type env map[string]string

func newEnv(environ []string) env {
	e := make(env, len(environ))
	for _, kv := range environ {
		if key, val, ok := strings.Cut(kv, "="); ok {
			e[key] = val
		}
	}
	return e
}

func (e env) get(key, defaultValue string) string {
	if value := e[key]; value != "" {
		return value
	}
	return defaultValue
}

func (e env) getInt(key string, defaultValue int) int {
	if value := e[key]; value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (e env) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e[key]; value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (e env) getBool(key string, defaultValue bool) bool {
	if value := e[key]; value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
