package training

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/courtcast/pkg/ensemble"
	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/gamelog"
	"github.com/HatiCode/courtcast/pkg/models"
	"github.com/HatiCode/courtcast/pkg/validate"
)

var opening = time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC)

// league generates n games for players with the given scoring baselines.
// Rebounds and assists follow their own baselines so no stat is a copy of
// another.
func league(n int, baselines map[string]float64) []gamelog.GameRecord {
	rng := rand.New(rand.NewPCG(1, 2))
	positions := []string{"PG", "SG", "SF", "PF", "C"}

	var out []gamelog.GameRecord
	k := 0
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		base, ok := baselines[id]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			out = append(out, gamelog.GameRecord{
				PlayerID: id,
				Position: positions[k%len(positions)],
				Date:     opening.AddDate(0, 0, 2*i+k%2),
				Minutes:  math.Max(0, 22+base/3+rng.NormFloat64()*3),
				Points:   math.Round(math.Max(0, base+rng.NormFloat64()*5)),
				Rebounds: math.Round(math.Max(0, 3+float64(k)+rng.NormFloat64()*2)),
				Assists:  math.Round(math.Max(0, 7-float64(k)+rng.NormFloat64()*2)),
				FGPct:    0.40 + rng.Float64()*0.15,
				FG3Pct:   0.30 + rng.Float64()*0.15,
				FTPct:    0.70 + rng.Float64()*0.2,
				Home:     i%2 == 0,
				RestDays: float64(1 + i%3),
			})
		}
		k++
	}
	return out
}

var testBaselines = map[string]float64{
	"p1": 30, "p2": 32, "p3": 10, "p4": 12, "p5": 20, "p6": 22,
}

func smallParams() models.Params {
	return models.Params{
		Trees: 15, MaxDepth: 3, LearningRate: 0.2, MinChildWeight: 3,
		Subsample: 0.8, ColSample: 0.8, Lambda: 1, Seed: 7, MaxBins: 32,
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.Model = smallParams()
	o.Ensemble.General = smallParams()
	o.Ensemble.Alternate = smallParams()
	o.Ensemble.Alternate.Trees = 10
	o.Ensemble.Alternate.Subsample = 1
	o.Ensemble.Star = smallParams()
	o.Ensemble.Role = smallParams()
	o.Ensemble.MinArchetypeRows = 20
	return o
}

type fakeRecorder struct {
	mu        sync.Mutex
	targets   map[string]models.Evaluation
	ensembles int
	failures  map[string]string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{targets: map[string]models.Evaluation{}, failures: map[string]string{}}
}

func (f *fakeRecorder) ObserveTarget(target string, ev models.Evaluation, _ int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[target] = ev
}

func (f *fakeRecorder) ObserveEnsemble(string, models.Evaluation, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensembles++
}

func (f *fakeRecorder) TargetFailed(target, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[target] = reason
}

func newTrainer(t *testing.T, opts Options, rec Recorder) *Trainer {
	t.Helper()
	b, err := features.NewBuilder(features.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	tr, err := New(opts, b, validate.New(validate.DefaultOptions(), nil), nil, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestTrain_EndToEnd(t *testing.T) {
	rec := newFakeRecorder()
	tr := newTrainer(t, testOptions(), rec)

	res, err := tr.Train(context.Background(), league(60, testBaselines))
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := res.Err(); err != nil {
		t.Fatalf("Result.Err() = %v", err)
	}
	if res.RunID == "" || res.FinishedAt.Before(res.StartedAt) {
		t.Errorf("run metadata = %q %v %v", res.RunID, res.StartedAt, res.FinishedAt)
	}

	for _, target := range gamelog.Targets {
		m, ok := res.Models[target]
		if !ok {
			t.Fatalf("no model for %s", target)
		}
		if m.Target != target || m.RunID != res.RunID || m.Version != "1.0.0" {
			t.Errorf("%s artifact binding = %q run %q version %q", target, m.Target, m.RunID, m.Version)
		}
		if err := m.Validate(); err != nil {
			t.Errorf("%s artifact invalid: %v", target, err)
		}
		sum := res.Targets[target]
		if !sum.Chronological {
			t.Errorf("%s split was not chronological", target)
		}
		if sum.TrainRows == 0 || sum.TestRows == 0 {
			t.Errorf("%s rows = %d/%d", target, sum.TrainRows, sum.TestRows)
		}
		if math.IsNaN(sum.Metrics.MAE) || sum.Metrics.MAE <= 0 {
			t.Errorf("%s MAE = %v", target, sum.Metrics.MAE)
		}
		if _, ok := rec.targets[target]; !ok {
			t.Errorf("recorder missed %s", target)
		}
	}

	e, ok := res.Ensembles[gamelog.Points]
	if !ok {
		t.Fatal("no points ensemble")
	}
	if e.General == nil || e.Alternate == nil {
		t.Fatal("ensemble is missing a general component")
	}
	if e.Alternate.Model.Kind != models.KindRandomForest {
		t.Errorf("alternate kind = %q, want %q", e.Alternate.Model.Kind, models.KindRandomForest)
	}
	if e.Star == nil || e.Role == nil {
		t.Errorf("archetype models star=%v role=%v, want both", e.Star != nil, e.Role != nil)
	}
	if len(res.Ensembles) != 1 {
		t.Errorf("ensembles = %d, want only the primary target", len(res.Ensembles))
	}
	sum := res.Targets[gamelog.Points].Ensemble
	if sum == nil {
		t.Fatal("points summary has no ensemble section")
	}
	if _, ok := sum.Components[ensemble.General]; !ok {
		t.Error("component metrics missing general")
	}
	if got := sum.Improvement; got != e.General.Metrics.MAE-e.Metrics.MAE {
		t.Errorf("Improvement = %v", got)
	}
	if rec.ensembles != 1 {
		t.Errorf("ObserveEnsemble calls = %d, want 1", rec.ensembles)
	}

	set, err := res.Set()
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := len(set.Targets()); got != 3 {
		t.Errorf("set targets = %d, want 3", got)
	}
}

func TestTrain_InsufficientDataFailsOnlyThatTarget(t *testing.T) {
	rec := newFakeRecorder()
	tr := newTrainer(t, testOptions(), rec)

	records := league(60, testBaselines)
	for i := range records {
		if records[i].PlayerID != "p1" {
			records[i].Rebounds = math.NaN()
		}
	}

	res, err := tr.Train(context.Background(), records)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Target != gamelog.Rebounds {
		t.Fatalf("Failures = %+v, want rebounds only", res.Failures)
	}
	if res.Failures[0].Reason != ReasonInsufficient {
		t.Errorf("Reason = %q, want %q", res.Failures[0].Reason, ReasonInsufficient)
	}
	if !errors.Is(res.Err(), validate.ErrInsufficientData) {
		t.Errorf("Result.Err() = %v, want ErrInsufficientData", res.Err())
	}
	if rec.failures[gamelog.Rebounds] != ReasonInsufficient {
		t.Errorf("recorder failures = %v", rec.failures)
	}
	for _, target := range []string{gamelog.Points, gamelog.Assists} {
		if _, ok := res.Models[target]; !ok {
			t.Errorf("%s did not train", target)
		}
	}
	if _, ok := res.Models[gamelog.Rebounds]; ok {
		t.Error("rebounds produced an artifact")
	}
}

func TestTrain_SkipsSmallArchetypes(t *testing.T) {
	opts := testOptions()
	opts.Targets = []string{gamelog.Points}
	opts.Ensemble.MinArchetypeRows = 1000
	tr := newTrainer(t, opts, nil)

	res, err := tr.Train(context.Background(), league(60, testBaselines))
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	e := res.Ensembles[gamelog.Points]
	if e == nil {
		t.Fatal("no ensemble")
	}
	if e.Star != nil || e.Role != nil {
		t.Error("archetype models trained below the row floor")
	}
	if len(res.Targets[gamelog.Points].Ensemble.ArchetypeRows) != 0 {
		t.Error("ArchetypeRows reported for skipped partitions")
	}
}

func TestTrain_EnsembleDisabled(t *testing.T) {
	opts := testOptions()
	opts.Targets = []string{gamelog.Points}
	opts.Ensemble.Enabled = false
	tr := newTrainer(t, opts, nil)

	res, err := tr.Train(context.Background(), league(60, testBaselines))
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(res.Ensembles) != 0 {
		t.Errorf("ensembles = %d, want 0", len(res.Ensembles))
	}
	if _, ok := res.Models[gamelog.Points]; !ok {
		t.Error("points model missing")
	}
}

func TestTrain_Canceled(t *testing.T) {
	tr := newTrainer(t, testOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Train(ctx, league(60, testBaselines)); !errors.Is(err, context.Canceled) {
		t.Errorf("Train() error = %v, want context.Canceled", err)
	}
}

func TestTrain_UnorderedHistory(t *testing.T) {
	tr := newTrainer(t, testOptions(), nil)
	records := league(10, map[string]float64{"p1": 20})
	records[3].Date = records[2].Date

	if _, err := tr.Train(context.Background(), records); !errors.Is(err, gamelog.ErrUnorderedHistory) {
		t.Errorf("Train() error = %v, want ErrUnorderedHistory", err)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&validate.LeakageError{Target: "rebounds", Feature: "rebounds", Correlation: 1}, ReasonLeakage},
		{errors.Join(validate.ErrInsufficientData, validate.ErrInvalidTarget), ReasonInsufficient},
		{validate.ErrInvalidTarget, ReasonInvalid},
		{context.DeadlineExceeded, ReasonCanceled},
		{errors.New("boom"), ReasonError},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"no targets", func(o *Options) { o.Targets = nil }, true},
		{"unknown target", func(o *Options) { o.Targets = []string{"steals"} }, true},
		{"duplicate target", func(o *Options) { o.Targets = []string{"points", "points"} }, true},
		{"empty version", func(o *Options) { o.Version = "" }, true},
		{"fraction one", func(o *Options) { o.TrainFraction = 1 }, true},
		{"zero parallelism", func(o *Options) { o.Parallelism = 0 }, true},
		{"bad model", func(o *Options) { o.Model.Trees = 0 }, true},
		{"thresholds swapped", func(o *Options) { o.Ensemble.LowThreshold = 30 }, true},
		{"bad alternate", func(o *Options) { o.Ensemble.Alternate.ColSample = 0 }, true},
		{"disabled ensemble skips checks", func(o *Options) {
			o.Ensemble.Enabled = false
			o.Ensemble.Alternate.ColSample = 0
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
