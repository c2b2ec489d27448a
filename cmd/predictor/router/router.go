// Package router configures the predictor's HTTP API.
//
// Routes configured:
//   - POST /v1/predict - next-game prediction for one player
//   - GET /v1/models   - loaded artifacts with their held-out metrics
//   - GET /healthz     - liveness
//   - GET /readyz      - readiness, 503 until an artifact set is loaded
//   - GET /metrics     - Prometheus metrics
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/courtcast/pkg/artifacts"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/gamelog"
	"github.com/HatiCode/courtcast/pkg/httpx"
	"github.com/HatiCode/courtcast/pkg/models"
	"github.com/HatiCode/courtcast/pkg/predict"
	"github.com/HatiCode/courtcast/pkg/storage"
)

// CacheHeader reports whether a prediction was served from the cache.
const CacheHeader = "X-Courtcast-Cache"

// ErrorRecorder counts request failures. It may be nil.
type ErrorRecorder interface {
	RecordError(component, reason string)
}

// CacheRecorder counts response cache lookups. It may be nil.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// Options configures the routes.
type Options struct {
	MaxBodyBytes int64
	Errors       ErrorRecorder

	// Cache, when set, stores prediction responses keyed by the artifact
	// set and the request.
	Cache        storage.Cache
	CacheLookups CacheRecorder
}

// SetupRoutes returns the predictor's handler, wrapped in recovery and
// request logging.
func SetupRoutes(p *predict.Predictor, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(func() error {
		if p == nil || len(p.Set().Targets()) == 0 {
			return errors.New("no artifacts loaded")
		}
		return nil
	}))
	mux.HandleFunc("POST /v1/predict", handlePredict(p, opts, logger))
	mux.HandleFunc("GET /v1/models", handleModels(p, logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	return httpx.Chain(mux, httpx.RecoveryMiddleware(logger), httpx.LoggingMiddleware(logger))
}

// PredictRequest is the body of POST /v1/predict. History must hold one
// player's games; the upcoming game supplies the context known in advance.
type PredictRequest struct {
	PlayerID string       `json:"playerId"`
	Upcoming UpcomingGame `json:"upcoming"`
	History  []Game       `json:"history"`
}

// UpcomingGame is the context of the game being forecast.
type UpcomingGame struct {
	Date             string  `json:"date,omitempty"`
	Position         string  `json:"position,omitempty"`
	Home             bool    `json:"home"`
	RestDays         float64 `json:"restDays"`
	OpponentStrength float64 `json:"opponentStrength"`
}

// Game is one past game. Absent statistics are treated as missing rather
// than zero.
type Game struct {
	Date     string `json:"date"`
	Position string `json:"position,omitempty"`

	Minutes   *float64 `json:"minutes"`
	Points    *float64 `json:"points"`
	Rebounds  *float64 `json:"rebounds"`
	Assists   *float64 `json:"assists"`
	Steals    *float64 `json:"steals,omitempty"`
	Blocks    *float64 `json:"blocks,omitempty"`
	Turnovers *float64 `json:"turnovers,omitempty"`
	FGPct     *float64 `json:"fgPct,omitempty"`
	FG3Pct    *float64 `json:"fg3Pct,omitempty"`
	FTPct     *float64 `json:"ftPct,omitempty"`

	Home             bool     `json:"home"`
	RestDays         *float64 `json:"restDays,omitempty"`
	OpponentStrength *float64 `json:"opponentStrength,omitempty"`
}

func handlePredict(p *predict.Predictor, opts Options, logger *slog.Logger) http.HandlerFunc {
	fail := func(w http.ResponseWriter, status int, reason string, err error) {
		if opts.Errors != nil {
			opts.Errors.RecordError("predict", reason)
		}
		httpx.WriteError(w, status, err)
	}

	var fingerprint string
	if opts.Cache != nil {
		fingerprint = p.Set().Fingerprint()
	}

	// lookup treats cache failures as misses.
	lookup := func(r *http.Request, key string) ([]byte, bool) {
		cached, found, err := opts.Cache.Get(r.Context(), key)
		if err != nil {
			logger.Warn("prediction cache lookup failed", "error", err)
			if opts.Errors != nil {
				opts.Errors.RecordError("cache", "get")
			}
			found = false
		}
		if opts.CacheLookups != nil {
			opts.CacheLookups.RecordCacheLookup(found)
		}
		return cached, found
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var body PredictRequest
		if err := httpx.DecodeJSON(w, r, opts.MaxBodyBytes, &body); err != nil {
			if errors.Is(err, httpx.ErrBodyTooLarge) {
				fail(w, http.StatusRequestEntityTooLarge, "body_too_large", err)
				return
			}
			fail(w, http.StatusBadRequest, "bad_request", err)
			return
		}

		req, err := body.toRequest()
		if err != nil {
			fail(w, http.StatusBadRequest, "bad_request", err)
			return
		}

		var key string
		if opts.Cache != nil {
			canonical, err := json.Marshal(body)
			if err == nil {
				key = storage.Key(fingerprint, canonical)
				if cached, ok := lookup(r, key); ok {
					writeCached(w, "hit", cached, logger)
					return
				}
			}
		}

		res, err := p.Predict(req)
		if err != nil {
			if errors.Is(err, gamelog.ErrNoHistory) || errors.Is(err, gamelog.ErrUnorderedHistory) {
				fail(w, http.StatusUnprocessableEntity, "invalid_history", err)
				return
			}
			logger.Error("prediction failed", "player", req.PlayerID, "error", err)
			fail(w, http.StatusInternalServerError, "internal", errors.New("prediction failed"))
			return
		}

		if key == "" {
			if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
				logger.Error("failed to write JSON response", "error", err)
			}
			return
		}

		data, err := json.Marshal(res)
		if err != nil {
			logger.Error("failed to encode prediction", "player", req.PlayerID, "error", err)
			fail(w, http.StatusInternalServerError, "internal", errors.New("prediction failed"))
			return
		}
		data = append(data, '\n')
		if err := opts.Cache.Put(r.Context(), key, data); err != nil {
			logger.Warn("failed to cache prediction", "player", req.PlayerID, "error", err)
			if opts.Errors != nil {
				opts.Errors.RecordError("cache", "put")
			}
		}
		writeCached(w, "miss", data, logger)
	}
}

func writeCached(w http.ResponseWriter, status string, data []byte, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(CacheHeader, status)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}

func (b PredictRequest) toRequest() (predict.Request, error) {
	if b.PlayerID == "" {
		return predict.Request{}, errors.New("playerId is required")
	}
	if len(b.History) == 0 {
		return predict.Request{}, errors.New("history must contain at least one game")
	}

	req := predict.Request{
		PlayerID: b.PlayerID,
		History:  make([]gamelog.GameRecord, 0, len(b.History)),
		Upcoming: features.Upcoming{
			Position:         b.Upcoming.Position,
			Home:             b.Upcoming.Home,
			RestDays:         b.Upcoming.RestDays,
			OpponentStrength: b.Upcoming.OpponentStrength,
		},
	}
	if pos := b.Upcoming.Position; pos != "" && gamelog.NormalizePosition(pos) == "" {
		return predict.Request{}, fmt.Errorf("unknown position %q", pos)
	}
	if b.Upcoming.Date != "" {
		d, err := parseDate(b.Upcoming.Date)
		if err != nil {
			return predict.Request{}, fmt.Errorf("upcoming.date: %w", err)
		}
		req.Upcoming.Date = d
	}

	for i, g := range b.History {
		d, err := parseDate(g.Date)
		if err != nil {
			return predict.Request{}, fmt.Errorf("history[%d].date: %w", i, err)
		}
		rec := gamelog.GameRecord{
			PlayerID:         b.PlayerID,
			Position:         g.Position,
			Date:             d,
			Home:             g.Home,
			RestDays:         value(g.RestDays),
			OpponentStrength: value(g.OpponentStrength),
		}
		for stat, v := range map[string]*float64{
			gamelog.Minutes:   g.Minutes,
			gamelog.Points:    g.Points,
			gamelog.Rebounds:  g.Rebounds,
			gamelog.Assists:   g.Assists,
			gamelog.Steals:    g.Steals,
			gamelog.Blocks:    g.Blocks,
			gamelog.Turnovers: g.Turnovers,
			gamelog.FGPct:     g.FGPct,
			gamelog.FG3Pct:    g.FG3Pct,
			gamelog.FTPct:     g.FTPct,
		} {
			if v != nil && *v < 0 {
				return predict.Request{}, fmt.Errorf("history[%d].%s must be >= 0", i, stat)
			}
			rec.SetStat(stat, value(v))
		}
		req.History = append(req.History, rec)
	}
	return req, nil
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD or RFC 3339, got %q", s)
	}
	d = d.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ModelInfo describes one loaded artifact.
type ModelInfo struct {
	Target           string                       `json:"target"`
	Kind             string                       `json:"kind"`
	ID               string                       `json:"id"`
	RunID            string                       `json:"runId,omitempty"`
	Version          string                       `json:"version"`
	TrainedAt        time.Time                    `json:"trainedAt"`
	Features         int                          `json:"features"`
	Metrics          models.Evaluation            `json:"metrics"`
	ComponentMetrics map[string]models.Evaluation `json:"componentMetrics,omitempty"`
}

func handleModels(p *predict.Predictor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, map[string]any{"models": describe(p.Set())}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func describe(set *artifacts.Set) []ModelInfo {
	out := []ModelInfo{}
	for _, t := range set.Targets() {
		if a, ok := set.Model(t); ok {
			out = append(out, ModelInfo{
				Target:    t,
				Kind:      "model",
				ID:        a.ID,
				RunID:     a.RunID,
				Version:   a.Version,
				TrainedAt: a.TrainedAt,
				Features:  len(a.Features),
				Metrics:   a.Metrics,
			})
		}
		if e, ok := set.Ensemble(t); ok {
			out = append(out, ModelInfo{
				Target:           t,
				Kind:             "ensemble",
				ID:               e.ID,
				RunID:            e.RunID,
				Version:          e.Version,
				TrainedAt:        e.TrainedAt,
				Features:         len(e.Features),
				Metrics:          e.Metrics,
				ComponentMetrics: e.ComponentMetrics,
			})
		}
	}
	return out
}
