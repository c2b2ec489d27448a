// Command predictor serves next-game stat predictions from a trained artifact
// set.
//
// At startup the predictor loads the model and ensemble artifact of every
// configured target from the artifact store, checking that each artifact is
// bound to the target it is stored under. Any binding mismatch aborts startup.
// The set is then served read-only:
//   - POST /v1/predict - bounded predictions for one player's next game
//   - GET /v1/models   - loaded artifacts and their held-out metrics
//   - GET /healthz, /readyz - liveness and readiness
//   - GET /metrics     - Prometheus metrics
//
// A gRPC health service (grpc.health.v1) listens on -grpc-listen for
// orchestrators that probe over gRPC.
//
// Usage:
//
//	predictor -artifact-dir=/var/lib/courtcast -config=courtcast.yaml
//
// Environment variables:
//
//	LISTEN           - HTTP listen address (default: :8080)
//	GRPC_LISTEN      - gRPC health listen address (default: :9090)
//	STORE            - Artifact store: file or redis (default: file)
//	ARTIFACT_DIR     - Artifact directory (default: ./artifacts)
//	REDIS_ADDR       - Redis address when STORE=redis
//	CONFIG_FILE      - Tuning configuration file
//	CACHE            - Prediction cache: none, memory or redis (default: none)
//	CACHE_TTL        - Prediction cache entry lifetime (default: 10m)
//	TLS_ENABLED      - Serve over TLS (default: false)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/courtcast/cmd/predictor/config"
	"github.com/HatiCode/courtcast/cmd/predictor/metrics"
	"github.com/HatiCode/courtcast/cmd/predictor/router"
	"github.com/HatiCode/courtcast/pkg/artifacts"
	tuning "github.com/HatiCode/courtcast/pkg/config"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/httpx"
	"github.com/HatiCode/courtcast/pkg/logging"
	"github.com/HatiCode/courtcast/pkg/predict"
	"github.com/HatiCode/courtcast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting courtcast predictor",
		"version", version,
		"store", cfg.Store.Backend,
		"tls_enabled", cfg.TLS.Enabled,
	)

	tc, err := tuning.Load(cfg.ConfigFile)
	if err != nil {
		logger.Error("failed to load tuning configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)

	store, err := artifacts.Open(cfg.Store)
	if err != nil {
		logger.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	set, err := artifacts.LoadSet(loadCtx, store, tc.Training.Targets, logger)
	cancelLoad()
	if err != nil {
		reason := "load"
		if errors.Is(err, artifacts.ErrTargetMismatch) {
			reason = "binding"
		}
		m.RecordError("artifacts", reason)
		logger.Error("refusing to serve: artifact set failed to load", "error", err)
		os.Exit(1)
	}
	m.SetModels(set)

	builder, err := features.NewBuilder(tc.Features, logger)
	if err != nil {
		logger.Error("invalid feature configuration", "error", err)
		os.Exit(1)
	}

	predictor, err := predict.New(set, builder, tc.Prediction, tc.Training.Targets, logger, m)
	if err != nil {
		logger.Error("failed to create predictor", "error", err)
		os.Exit(1)
	}

	serverTLS, err := cfg.TLS.Server()
	if err != nil {
		logger.Error("invalid TLS configuration", "error", err)
		os.Exit(1)
	}

	cache, err := storage.Open(cfg.Cache)
	if err != nil {
		logger.Error("failed to open prediction cache", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		logger.Info("prediction cache enabled", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Error("failed to close cache", "error", err)
			}
		}()
	}

	handler := router.SetupRoutes(predictor, router.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Errors:       m,
		Cache:        cache,
		CacheLookups: m,
	}, logger)
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)
	if serverTLS != nil {
		httpServer.SetTLSConfig(serverTLS)
	}

	var grpcServer *grpc.Server
	serverErr := make(chan error, 2)

	if cfg.GRPCListen != "" {
		var opts []grpc.ServerOption
		if serverTLS != nil {
			opts = append(opts, grpc.Creds(credentials.NewTLS(serverTLS)))
		}
		grpcServer = grpc.NewServer(opts...)

		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus("courtcast.Predictor", grpc_health_v1.HealthCheckResponse_SERVING)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			logger.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health server listening", "address", cfg.GRPCListen)
			serverErr <- grpcServer.Serve(lis)
		}()
	}

	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
