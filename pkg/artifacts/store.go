package artifacts

import (
	"context"
	"fmt"
	"time"
)

// Store persists artifacts keyed by target. Load methods report found=false,
// with a nil error, when nothing is stored for the target. Stores do not check
// bindings; that is LoadSet's job.
type Store interface {
	SaveModel(ctx context.Context, a *ModelArtifact) error
	LoadModel(ctx context.Context, target string) (*ModelArtifact, bool, error)
	SaveEnsemble(ctx context.Context, e *EnsembleArtifact) error
	LoadEnsemble(ctx context.Context, target string) (*EnsembleArtifact, bool, error)
	Close() error
}

// checkTarget restricts target names to characters that are safe in file
// names and Redis keys.
func checkTarget(target string) error {
	if target == "" {
		return fmt.Errorf("target name required")
	}
	for _, c := range target {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid target name %q: only alphanumeric, hyphens, and underscores allowed", target)
		}
	}
	return nil
}

// Store backends accepted by Open.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// Open creates the configured store.
func Open(cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifact store %q (must be file or redis)", cfg.Backend)
	}
}
