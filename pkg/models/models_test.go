package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func stepData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{float64(i), float64(i % 7)}
		if i >= n/2 {
			y[i] = 10
		}
	}
	return X, y
}

func boostParams() Params {
	return Params{
		Trees:          50,
		MaxDepth:       3,
		LearningRate:   0.3,
		MinChildWeight: 1,
		Subsample:      1,
		ColSample:      1,
		Seed:           7,
	}
}

func TestGradientBoosting_LearnsStep(t *testing.T) {
	X, y := stepData(100)
	m := NewGradientBoosting(boostParams())

	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if got := m.Predict([]float64{10, 3}); math.Abs(got) > 0.1 {
		t.Errorf("Predict(low) = %.3f, want ~0", got)
	}
	if got := m.Predict([]float64{80, 3}); math.Abs(got-10) > 0.1 {
		t.Errorf("Predict(high) = %.3f, want ~10", got)
	}
	if m.Kind() != KindGradientBoosting {
		t.Errorf("Kind() = %q", m.Kind())
	}
	if len(m.Trees) != 50 {
		t.Errorf("len(Trees) = %d, want 50", len(m.Trees))
	}
}

func TestGradientBoosting_Deterministic(t *testing.T) {
	X, y := stepData(80)
	p := boostParams()
	p.Subsample = 0.7
	p.ColSample = 0.5

	a := NewGradientBoosting(p)
	b := NewGradientBoosting(p)
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	for _, x := range X {
		if a.Predict(x) != b.Predict(x) {
			t.Fatalf("same seed produced different predictions for %v", x)
		}
	}
}

func TestRandomForest_LearnsStep(t *testing.T) {
	X, y := stepData(100)
	m := NewRandomForest(Params{
		Trees:          25,
		MaxDepth:       6,
		MinChildWeight: 1,
		Subsample:      1,
		ColSample:      1,
		Seed:           3,
	})

	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if got := m.Predict([]float64{10, 0}); got != 0 {
		t.Errorf("Predict(low) = %.3f, want 0", got)
	}
	if got := m.Predict([]float64{80, 0}); got != 10 {
		t.Errorf("Predict(high) = %.3f, want 10", got)
	}
}

func TestRandomForest_Untrained(t *testing.T) {
	if got := NewRandomForest(Params{}).Predict([]float64{1}); got != 0 {
		t.Errorf("untrained Predict() = %v, want 0", got)
	}
}

func TestFit_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []float64
		want error
	}{
		{"empty", nil, nil, ErrEmptyTrainingSet},
		{"length mismatch", [][]float64{{1}, {2}}, []float64{1}, ErrShapeMismatch},
		{"ragged rows", [][]float64{{1, 2}, {3}}, []float64{1, 2}, ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGradientBoosting(boostParams()).Fit(tt.X, tt.y)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParams_Validate(t *testing.T) {
	p := boostParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := p
	bad.Subsample = 0
	if bad.Validate() == nil {
		t.Error("subsample 0 should be rejected")
	}

	bad = p
	bad.Trees = 0
	if bad.Validate() == nil {
		t.Error("zero trees should be rejected")
	}
}

func TestEnvelope_PreservesPredictions(t *testing.T) {
	X, y := stepData(60)
	m := NewGradientBoosting(boostParams())
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	data, err := MarshalEnvelope(m)
	if err != nil {
		t.Fatalf("MarshalEnvelope() error = %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, x := range X {
		if got, want := env.Predict(x), m.Predict(x); math.Abs(got-want) > 1e-9 {
			t.Fatalf("decoded model predicts %v, original %v", got, want)
		}
	}
}

func TestEnvelope_KindMismatch(t *testing.T) {
	env := &Envelope{Kind: KindRandomForest, GradientBoosting: NewGradientBoosting(boostParams())}
	if _, err := env.Regressor(); err == nil {
		t.Error("expected error for kind/body mismatch")
	}
	if got := env.Predict([]float64{1}); got != 0 {
		t.Errorf("malformed envelope Predict() = %v, want 0", got)
	}
}

func TestNew(t *testing.T) {
	r, err := New(KindRandomForest, boostParams())
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind() != KindRandomForest {
		t.Errorf("Kind() = %q", r.Kind())
	}
	if _, err := New("svm", boostParams()); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestEvaluate(t *testing.T) {
	actual := []float64{10, 20, 30, 40}
	predicted := []float64{12, 18, 33, 37}

	ev := Evaluate(predicted, actual)

	if math.Abs(ev.MAE-2.5) > 1e-9 {
		t.Errorf("MAE = %v, want 2.5", ev.MAE)
	}
	wantRMSE := math.Sqrt((4 + 4 + 9 + 9) / 4.0)
	if math.Abs(ev.RMSE-wantRMSE) > 1e-9 {
		t.Errorf("RMSE = %v, want %v", ev.RMSE, wantRMSE)
	}
	// SSres = 26, SStot = 500
	if math.Abs(ev.R2-(1-26.0/500.0)) > 1e-9 {
		t.Errorf("R2 = %v, want %v", ev.R2, 1-26.0/500.0)
	}
}

func TestEvaluate_ConstantActual(t *testing.T) {
	ev := Evaluate([]float64{1, 2}, []float64{5, 5})
	if ev.R2 != 0 {
		t.Errorf("R2 = %v, want 0 for constant actual values", ev.R2)
	}
	if ev.MAE != 3.5 {
		t.Errorf("MAE = %v, want 3.5", ev.MAE)
	}
}

func TestSummarize(t *testing.T) {
	if s := Summarize(nil); s.Mean != 0 || s.Std != 0 {
		t.Errorf("Summarize(nil) = %+v", s)
	}
	if s := Summarize([]float64{4}); s.Mean != 4 || s.Std != 0 {
		t.Errorf("Summarize(single) = %+v", s)
	}
	s := Summarize([]float64{2, 4, 6})
	if s.Mean != 4 || math.Abs(s.Std-2) > 1e-9 {
		t.Errorf("Summarize() = %+v, want mean 4 std 2", s)
	}
}

func TestGradientBoosting_HistogramSplits(t *testing.T) {
	X, y := stepData(100)
	p := boostParams()
	p.MaxBins = 8
	m := NewGradientBoosting(p)

	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got := m.Predict([]float64{10, 3}); math.Abs(got) > 0.1 {
		t.Errorf("Predict(low) = %.3f, want ~0", got)
	}
	if got := m.Predict([]float64{80, 3}); math.Abs(got-10) > 0.1 {
		t.Errorf("Predict(high) = %.3f, want ~10", got)
	}
}

func TestCutPoints(t *testing.T) {
	tests := []struct {
		name    string
		col     []float64
		maxBins int
		want    []float64
	}{
		{"constant", []float64{2, 2, 2}, 4, nil},
		{"few distinct", []float64{3, 1, 2, 1}, 4, []float64{1.5, 2.5}},
		{"quantised", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 4, []float64{1.5, 3.5, 5.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cutPoints(tt.col, tt.maxBins)
			if len(got) != len(tt.want) {
				t.Fatalf("cutPoints() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("cutPoints()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
