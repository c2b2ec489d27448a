package ensemble

import (
	"math"
	"testing"
)

type constant float64

func (c constant) Predict([]float64) float64 { return float64(c) }

func newCombiner() Combiner {
	return Combiner{
		Weights:       DefaultWeights(),
		HighThreshold: 25,
		LowThreshold:  15,
		Fallback:      15,
	}
}

func TestCombine_FallbackProperty(t *testing.T) {
	general := constant(20)
	alternate := constant(30)
	star := constant(40)

	tests := []struct {
		name     string
		comps    Components
		baseline float64
		want     float64
		parts    int
	}{
		{"none", Components{}, 28, 15, 0},
		{"general only", Components{General: general}, 20, 20, 1},
		{"alternate only", Components{Alternate: alternate}, 20, 30, 1},
		{"general and alternate", Components{General: general, Alternate: alternate}, 20, 25, 2},
		{"all three, star baseline", Components{General: general, Alternate: alternate, Star: star}, 28, 0.4*20 + 0.4*30 + 0.2*40, 3},
		{"general and star", Components{General: general, Star: star}, 28, (0.4*20 + 0.2*40) / 0.6, 2},
		{"star only", Components{Star: star}, 30, 40, 1},
		{"star present but baseline mid-range", Components{General: general, Star: star}, 20, 20, 1},
		{"unknown baseline", Components{General: general, Star: star}, math.NaN(), 20, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newCombiner().Combine(nil, tt.baseline, tt.comps)

			if math.Abs(got.Value-tt.want) > 1e-9 {
				t.Errorf("Value = %v, want %v", got.Value, tt.want)
			}
			if got.Value < 0 {
				t.Errorf("Value = %v, must be non-negative", got.Value)
			}
			if len(got.Contributions) != tt.parts {
				t.Fatalf("len(Contributions) = %d, want %d", len(got.Contributions), tt.parts)
			}
			if tt.parts == 0 {
				if !got.UsedFallback {
					t.Error("expected UsedFallback")
				}
				return
			}

			sum := 0.0
			for _, c := range got.Contributions {
				sum += c.Weight
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("effective weights sum to %v, want 1", sum)
			}
		})
	}
}

func TestCombine_RoleArchetype(t *testing.T) {
	got := newCombiner().Combine(nil, 8, Components{
		General: constant(10),
		Star:    constant(50),
		Role:    constant(4),
	})

	want := (0.4*10 + 0.2*4) / 0.6
	if math.Abs(got.Value-want) > 1e-9 {
		t.Errorf("Value = %v, want %v", got.Value, want)
	}
	for _, c := range got.Contributions {
		if c.Component == Star {
			t.Error("star model used for a role-player baseline")
		}
	}
}

func TestCombine_FloorsAtZero(t *testing.T) {
	got := newCombiner().Combine(nil, 20, Components{General: constant(-3)})
	if got.Value != 0 {
		t.Errorf("Value = %v, want 0", got.Value)
	}

	c := newCombiner()
	c.Fallback = -1
	if got := c.Combine(nil, 20, Components{}); got.Value != 0 {
		t.Errorf("fallback Value = %v, want 0", got.Value)
	}
}

func TestCombine_ZeroWeightDropsComponent(t *testing.T) {
	c := newCombiner()
	c.Weights.Alternate = 0

	got := c.Combine(nil, 20, Components{General: constant(10), Alternate: constant(100)})
	if got.Value != 10 {
		t.Errorf("Value = %v, want 10", got.Value)
	}
}

func TestArchetype(t *testing.T) {
	c := newCombiner()
	tests := []struct {
		baseline float64
		want     string
	}{
		{30, Star},
		{25, ""},
		{20, ""},
		{15, ""},
		{10, Role},
		{math.NaN(), ""},
	}
	for _, tt := range tests {
		if got := c.Archetype(tt.baseline); got != tt.want {
			t.Errorf("Archetype(%v) = %q, want %q", tt.baseline, got, tt.want)
		}
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights rejected: %v", err)
	}
	if err := (Weights{General: -1, Alternate: 1}).Validate(); err == nil {
		t.Error("negative weight accepted")
	}
	if err := (Weights{}).Validate(); err == nil {
		t.Error("all-zero weights accepted")
	}
}
