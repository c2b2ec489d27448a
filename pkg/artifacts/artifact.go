// Package artifacts defines the persisted form of trained models and the
// stores that hold them.
//
// Every artifact is bound to exactly one target. Stores file artifacts under
// the target name, and LoadSet refuses to serve an artifact whose recorded
// binding differs from the slot it was read from.
package artifacts

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/courtcast/pkg/ensemble"
	"github.com/HatiCode/courtcast/pkg/models"
)

var (
	// ErrTargetMismatch is returned when an artifact's bound target differs
	// from the target it is loaded for.
	ErrTargetMismatch = errors.New("artifact target mismatch")

	// ErrNotFound is returned when no artifact exists for any requested target.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidArtifact is returned for structurally broken artifacts.
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// BindingError reports an artifact bound to one target sitting in another
// target's slot.
type BindingError struct {
	Kind  string // "model" or "ensemble"
	Slot  string
	Bound string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("%s artifact loaded for %q is bound to %q", e.Kind, e.Slot, e.Bound)
}

func (e *BindingError) Unwrap() error {
	return ErrTargetMismatch
}

// ModelArtifact is a fitted regressor with its binding metadata.
type ModelArtifact struct {
	ID        string            `json:"id"`
	RunID     string            `json:"runId,omitempty"`
	Target    string            `json:"target"`
	Features  []string          `json:"features"`
	Version   string            `json:"version"`
	TrainedAt time.Time         `json:"trainedAt"`
	TrainRows int               `json:"trainRows"`
	TestRows  int               `json:"testRows"`
	Metrics   models.Evaluation `json:"metrics"`
	Model     *models.Envelope  `json:"model"`
}

// NewModel wraps a fitted regressor. The feature slice is copied.
func NewModel(target string, names []string, version string, trainedAt time.Time, r models.Regressor) (*ModelArtifact, error) {
	env, err := models.Wrap(r)
	if err != nil {
		return nil, err
	}
	a := &ModelArtifact{
		ID:        uuid.NewString(),
		Target:    target,
		Features:  append([]string(nil), names...),
		Version:   version,
		TrainedAt: trainedAt.UTC(),
		Model:     env,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Predict evaluates the model on a vector laid out in Features order.
func (a *ModelArtifact) Predict(x []float64) float64 {
	return a.Model.Predict(x)
}

// Validate checks the artifact is self-consistent: it names a target, lists
// its features, and carries a model fitted on that many features.
func (a *ModelArtifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil model artifact", ErrInvalidArtifact)
	}
	if a.Target == "" {
		return fmt.Errorf("%w: model artifact %s has no target binding", ErrInvalidArtifact, a.ID)
	}
	if len(a.Features) == 0 {
		return fmt.Errorf("%w: %s model has no feature list", ErrInvalidArtifact, a.Target)
	}
	if _, err := a.Model.Regressor(); err != nil {
		return fmt.Errorf("%w: %s model: %v", ErrInvalidArtifact, a.Target, err)
	}
	if w := a.Model.Width(); w != len(a.Features) {
		return fmt.Errorf("%w: %s model fitted on %d features, artifact lists %d",
			ErrInvalidArtifact, a.Target, w, len(a.Features))
	}
	return nil
}

// EnsembleArtifact bundles the sub-models blended for one target. Every
// sub-model must be bound to the same target and share the feature layout.
type EnsembleArtifact struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId,omitempty"`
	Target    string    `json:"target"`
	Features  []string  `json:"features"`
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trainedAt"`

	Weights       ensemble.Weights `json:"weights"`
	HighThreshold float64          `json:"highThreshold"`
	LowThreshold  float64          `json:"lowThreshold"`
	Fallback      float64          `json:"fallback"`

	// BaselineFeature is the feature holding the season-to-date average used
	// to select the archetype model.
	BaselineFeature string `json:"baselineFeature"`

	General   *ModelArtifact `json:"general,omitempty"`
	Alternate *ModelArtifact `json:"alternate,omitempty"`
	Star      *ModelArtifact `json:"star,omitempty"`
	Role      *ModelArtifact `json:"role,omitempty"`

	Metrics          models.Evaluation            `json:"metrics"`
	ComponentMetrics map[string]models.Evaluation `json:"componentMetrics,omitempty"`
}

// Combiner returns the combiner configured by the artifact.
func (e *EnsembleArtifact) Combiner() ensemble.Combiner {
	return ensemble.Combiner{
		Weights:       e.Weights,
		HighThreshold: e.HighThreshold,
		LowThreshold:  e.LowThreshold,
		Fallback:      e.Fallback,
	}
}

// Components returns the available sub-models. Absent ones stay nil.
func (e *EnsembleArtifact) Components() ensemble.Components {
	var c ensemble.Components
	if e.General != nil {
		c.General = e.General
	}
	if e.Alternate != nil {
		c.Alternate = e.Alternate
	}
	if e.Star != nil {
		c.Star = e.Star
	}
	if e.Role != nil {
		c.Role = e.Role
	}
	return c
}

// Validate checks the bundle and the binding of each sub-model.
func (e *EnsembleArtifact) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil ensemble artifact", ErrInvalidArtifact)
	}
	if e.Target == "" {
		return fmt.Errorf("%w: ensemble artifact %s has no target binding", ErrInvalidArtifact, e.ID)
	}
	if err := e.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %s ensemble: %v", ErrInvalidArtifact, e.Target, err)
	}

	for _, sub := range []struct {
		name string
		a    *ModelArtifact
	}{
		{ensemble.General, e.General},
		{ensemble.Alternate, e.Alternate},
		{ensemble.Star, e.Star},
		{ensemble.Role, e.Role},
	} {
		if sub.a == nil {
			continue
		}
		if sub.a.Target != e.Target {
			return &BindingError{Kind: "ensemble " + sub.name, Slot: e.Target, Bound: sub.a.Target}
		}
		if err := sub.a.Validate(); err != nil {
			return err
		}
		if !slices.Equal(sub.a.Features, e.Features) {
			return fmt.Errorf("%w: %s ensemble %s model uses a different feature layout",
				ErrInvalidArtifact, e.Target, sub.name)
		}
	}
	return nil
}
