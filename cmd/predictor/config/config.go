// Package config parses the predictor's process configuration from flags and
// environment variables. Flags take precedence over the environment, which
// takes precedence over defaults.
//
// Model tuning (position bounds, interval multipliers, feature windows) lives
// in the YAML file named by -config and is loaded by pkg/config.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/HatiCode/courtcast/pkg/artifacts"
	"github.com/HatiCode/courtcast/pkg/storage"
	"github.com/HatiCode/courtcast/pkg/tls"
)

// Config holds all predictor configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	// ConfigFile is the tuning file; empty uses $COURTCAST_CONFIG or defaults.
	ConfigFile string

	Store artifacts.StoreConfig
	TLS   tls.Config

	// Cache shares the Redis connection settings of Store.
	Cache storage.Config

	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// ParseFlags parses os.Args and exits on invalid input.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
	return cfg
}

// Parse parses args with environment fallbacks and validates the result.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("predictor", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9090"), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ConfigFile, "config", getEnv("CONFIG_FILE", ""), "Tuning configuration YAML file")

	fs.StringVar(&cfg.Store.Backend, "store", getEnv("STORE", artifacts.BackendFile), "Artifact store: file or redis")
	fs.StringVar(&cfg.Store.Dir, "artifact-dir", getEnv("ARTIFACT_DIR", "./artifacts"), "Artifact directory for the file store")
	fs.StringVar(&cfg.Store.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.Store.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.Store.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA file for client certificate verification")

	fs.StringVar(&cfg.Cache.Backend, "cache", getEnv("CACHE", storage.BackendNone), "Prediction cache: none, memory or redis")
	fs.DurationVar(&cfg.Cache.TTL, "cache-ttl", getEnvDuration("CACHE_TTL", 10*time.Minute), "Prediction cache entry lifetime")
	fs.IntVar(&cfg.Cache.MaxEntries, "cache-max-entries", getEnvInt("CACHE_MAX_ENTRIES", 10000), "Maximum entries in the memory cache")

	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", getEnvInt64("MAX_BODY_BYTES", 1<<20), "Maximum predict request body size")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Cache.RedisAddr = cfg.Store.RedisAddr
	cfg.Cache.RedisPassword = cfg.Store.RedisPassword
	cfg.Cache.RedisDB = cfg.Store.RedisDB

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	switch c.Store.Backend {
	case artifacts.BackendFile:
		if c.Store.Dir == "" {
			return errors.New("artifact-dir is required for the file store")
		}
	case artifacts.BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("redis-addr is required for the redis store")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("redis-db must be >= 0")
		}
	default:
		return fmt.Errorf("invalid store %q (must be file or redis)", c.Store.Backend)
	}
	switch c.Cache.Backend {
	case storage.BackendNone:
	case storage.BackendMemory, storage.BackendRedis:
		if c.Cache.TTL <= 0 {
			return errors.New("cache-ttl must be > 0")
		}
		if c.Cache.Backend == storage.BackendRedis && c.Cache.RedisAddr == "" {
			return errors.New("redis-addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache %q (must be none, memory or redis)", c.Cache.Backend)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max-body-bytes must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown-timeout must be > 0")
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if c.TLS.Enabled && c.TLS.CertFile == "" {
		return errors.New("tls-cert-file and tls-key-file are required when TLS is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
