package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

// Set is the collection of artifacts a predictor serves from. It is read-only
// once built and safe for concurrent use.
type Set struct {
	models    map[string]*ModelArtifact
	ensembles map[string]*EnsembleArtifact
}

// NewSet builds a Set from artifacts keyed by their own binding. Each
// artifact is validated.
func NewSet(ms []*ModelArtifact, es []*EnsembleArtifact) (*Set, error) {
	s := &Set{
		models:    make(map[string]*ModelArtifact, len(ms)),
		ensembles: make(map[string]*EnsembleArtifact, len(es)),
	}
	for _, a := range ms {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		s.models[a.Target] = a
	}
	for _, e := range es {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		s.ensembles[e.Target] = e
	}
	return s, nil
}

// LoadSet reads the model and ensemble artifact of every target from store.
//
// A target with no artifacts is skipped and logged. An artifact whose bound
// target differs from the target it was stored under fails the whole load with
// a *BindingError; so does any structurally invalid artifact. If no target has
// any artifact, LoadSet returns ErrNotFound.
//
// Targets that failed in the latest run keep their older artifacts, so a set
// can mix training runs. That is logged as a warning, not refused.
func LoadSet(ctx context.Context, store Store, targets []string, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Set{
		models:    make(map[string]*ModelArtifact),
		ensembles: make(map[string]*EnsembleArtifact),
	}

	for _, target := range targets {
		a, found, err := store.LoadModel(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", target, err)
		}
		if found {
			if a.Target != target {
				return nil, &BindingError{Kind: "model", Slot: target, Bound: a.Target}
			}
			if err := a.Validate(); err != nil {
				return nil, err
			}
			s.models[target] = a
		}

		e, found, err := store.LoadEnsemble(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("load %s ensemble: %w", target, err)
		}
		if found {
			if e.Target != target {
				return nil, &BindingError{Kind: "ensemble", Slot: target, Bound: e.Target}
			}
			if err := e.Validate(); err != nil {
				return nil, err
			}
			s.ensembles[target] = e
		}

		_, hasModel := s.models[target]
		_, hasEnsemble := s.ensembles[target]
		switch {
		case !hasModel && !hasEnsemble:
			logger.Warn("no artifacts for target, it will be omitted from predictions", "target", target)
		default:
			logger.Info("loaded artifacts",
				"target", target,
				"model", hasModel,
				"ensemble", hasEnsemble,
			)
		}
	}

	if len(s.models) == 0 && len(s.ensembles) == 0 {
		return nil, fmt.Errorf("%w: none of %v", ErrNotFound, targets)
	}
	if runs := s.Runs(); len(runs) > 1 {
		logger.Warn("artifact set mixes training runs, some targets are stale", "runs", runs)
	}
	return s, nil
}

// Runs returns the distinct training run IDs recorded on the set's
// artifacts, sorted. Artifacts without a run ID are ignored.
func (s *Set) Runs() []string {
	var out []string
	add := func(id string) {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, a := range s.models {
		add(a.RunID)
	}
	for _, e := range s.ensembles {
		add(e.RunID)
	}
	sort.Strings(out)
	return out
}

// Model returns the per-target model artifact.
func (s *Set) Model(target string) (*ModelArtifact, bool) {
	a, ok := s.models[target]
	return a, ok
}

// Ensemble returns the ensemble artifact for target, if one was trained.
func (s *Set) Ensemble(target string) (*EnsembleArtifact, bool) {
	e, ok := s.ensembles[target]
	return e, ok
}

// Targets returns every target with at least one artifact, sorted.
func (s *Set) Targets() []string {
	var out []string
	for t := range s.models {
		out = append(out, t)
	}
	for t := range s.ensembles {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies the exact artifacts in the set. Two sets share a
// fingerprint only when they hold the same artifact IDs for the same targets.
func (s *Set) Fingerprint() string {
	h := sha256.New()
	for _, t := range s.Targets() {
		if a, ok := s.models[t]; ok {
			fmt.Fprintf(h, "%s/model/%s;", t, a.ID)
		}
		if e, ok := s.ensembles[t]; ok {
			fmt.Fprintf(h, "%s/ensemble/%s;", t, e.ID)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Save writes every artifact in the set to store.
func (s *Set) Save(ctx context.Context, store Store) error {
	for _, t := range s.Targets() {
		if a, ok := s.models[t]; ok {
			if err := store.SaveModel(ctx, a); err != nil {
				return fmt.Errorf("save %s model: %w", t, err)
			}
		}
		if e, ok := s.ensembles[t]; ok {
			if err := store.SaveEnsemble(ctx, e); err != nil {
				return fmt.Errorf("save %s ensemble: %w", t, err)
			}
		}
	}
	return nil
}
