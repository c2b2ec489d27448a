// Package validate checks training data before a model is trusted with it.
//
// Target checks reject empty or physically impossible label columns and warn on
// implausible single-game values. The leakage audit flags feature columns that
// either look like a same-game copy of a target by name, or track the target
// so closely that they can only have been computed from it.
//
// Findings are returned in a Report; Report.Err turns error-level findings into
// a single error that callers can inspect with errors.Is and errors.As.
package validate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/courtcast/pkg/features"
	"github.com/HatiCode/courtcast/pkg/gamelog"
)

var (
	// ErrLeakage marks a feature that leaks the target.
	ErrLeakage = errors.New("feature leaks target")

	// ErrInvalidTarget marks a label column that cannot be trained on.
	ErrInvalidTarget = errors.New("invalid target values")

	// ErrInsufficientData marks a target with too few labelled rows.
	ErrInsufficientData = errors.New("insufficient training data")
)

// LeakageError identifies the offending feature. Correlation is NaN for
// findings raised by the naming check.
type LeakageError struct {
	Target      string
	Feature     string
	Correlation float64
}

func (e *LeakageError) Error() string {
	if math.IsNaN(e.Correlation) {
		return fmt.Sprintf("feature %q leaks target %q: name refers to the target without a historical qualifier", e.Feature, e.Target)
	}
	return fmt.Sprintf("feature %q leaks target %q: correlation %.4f", e.Feature, e.Target, e.Correlation)
}

func (e *LeakageError) Unwrap() error {
	return ErrLeakage
}

// Severity of a Finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one issue detected by a check.
type Finding struct {
	Severity    Severity `json:"severity"`
	Target      string   `json:"target"`
	Feature     string   `json:"feature,omitempty"`
	Correlation float64  `json:"correlation,omitempty"`
	Message     string   `json:"message"`

	err error
}

// Report collects the findings of one or more checks for a target.
type Report struct {
	Target   string    `json:"target"`
	Findings []Finding `json:"findings"`
}

// Merge appends the findings of other.
func (r *Report) Merge(other Report) {
	r.Findings = append(r.Findings, other.Findings...)
}

// Warnings returns the warning-level findings.
func (r Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// Errors returns the error-level findings.
func (r Report) Errors() []Finding {
	return r.filter(SeverityError)
}

func (r Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Err joins every error-level finding, or returns nil if there are none.
func (r Report) Err() error {
	var errs []error
	for _, f := range r.Errors() {
		errs = append(errs, f.err)
	}
	return errors.Join(errs...)
}

// Options holds the thresholds used by the checks.
type Options struct {
	// Ceilings are per-target single-game values above which a warning is raised.
	Ceilings map[string]float64 `json:"ceilings" koanf:"ceilings"`

	ErrorCorrelation float64 `json:"errorCorrelation" koanf:"error_correlation"`
	WarnCorrelation  float64 `json:"warnCorrelation" koanf:"warn_correlation"`

	// MinSamples is the minimum number of labelled rows needed to train.
	MinSamples int `json:"minSamples" koanf:"min_samples"`

	// Qualifiers are name tokens marking a column as a historical aggregate.
	Qualifiers []string `json:"qualifiers" koanf:"qualifiers"`
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		Ceilings: map[string]float64{
			gamelog.Points:   100,
			gamelog.Rebounds: 40,
			gamelog.Assists:  30,
		},
		ErrorCorrelation: 0.99,
		WarnCorrelation:  0.95,
		MinSamples:       100,
		Qualifiers: []string{
			"avg", "season", "rolling", "ema", "std", "max", "min",
			"momentum", "over", "under", "zscore", "cv", "volatility", "trend",
		},
	}
}

// Validate checks the thresholds for consistency.
func (o Options) Validate() error {
	if o.WarnCorrelation <= 0 || o.WarnCorrelation > o.ErrorCorrelation || o.ErrorCorrelation > 1 {
		return fmt.Errorf("correlation thresholds must satisfy 0 < warn (%v) <= error (%v) <= 1",
			o.WarnCorrelation, o.ErrorCorrelation)
	}
	if o.MinSamples < 1 {
		return fmt.Errorf("min samples must be >= 1, got %d", o.MinSamples)
	}
	for t, c := range o.Ceilings {
		if c <= 0 {
			return fmt.Errorf("ceiling for %s must be > 0, got %v", t, c)
		}
	}
	if len(o.Qualifiers) == 0 {
		return errors.New("at least one aggregate qualifier is required")
	}
	return nil
}

// Validator runs target and leakage checks.
type Validator struct {
	opts       Options
	qualifiers map[string]bool
	// ambiguous holds qualifiers that are also stat prefixes ("min").
	ambiguous map[string]bool
	logger    *slog.Logger
}

// New creates a Validator. A nil logger falls back to slog.Default.
func New(opts Options, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	q := make(map[string]bool, len(opts.Qualifiers))
	for _, s := range opts.Qualifiers {
		q[s] = true
	}
	amb := make(map[string]bool)
	for _, s := range gamelog.Stats {
		if p := features.Prefix(s); q[p] {
			amb[p] = true
		}
	}
	return &Validator{opts: opts, qualifiers: q, ambiguous: amb, logger: logger}
}

// Target checks a label column. Missing entries (NaN) are ignored.
func (v *Validator) Target(target string, y []float64) Report {
	rep := Report{Target: target}

	var valid, negative, above int
	ceiling, hasCeiling := v.opts.Ceilings[target]
	for _, val := range y {
		if math.IsNaN(val) {
			continue
		}
		valid++
		if val < 0 {
			negative++
		}
		if hasCeiling && val > ceiling {
			above++
		}
	}

	switch {
	case valid == 0:
		rep.add(SeverityError, "", math.NaN(), fmt.Errorf("%w: %s has no valid values", ErrInvalidTarget, target))
	case valid < v.opts.MinSamples:
		rep.add(SeverityError, "", math.NaN(), fmt.Errorf("%w: %s has %d labelled rows, need %d",
			ErrInsufficientData, target, valid, v.opts.MinSamples))
	}
	if negative > 0 {
		rep.add(SeverityError, "", math.NaN(), fmt.Errorf("%w: %s has %d negative values", ErrInvalidTarget, target, negative))
	}
	if above > 0 {
		rep.add(SeverityWarning, "", math.NaN(), fmt.Errorf("%s has %d values above the sanity ceiling %v", target, above, ceiling))
	}

	v.log(rep)
	return rep
}

// Features audits the columns of X (named by names) against label column y.
// Rows whose label is NaN are excluded from the correlation check.
func (v *Validator) Features(target string, names []string, X [][]float64, y []float64) Report {
	rep := Report{Target: target}

	for _, name := range names {
		for _, t := range gamelog.Targets {
			if !v.mentions(name, t) {
				continue
			}
			switch {
			case !v.qualified(name):
				rep.add(SeverityError, name, math.NaN(), &LeakageError{Target: target, Feature: name, Correlation: math.NaN()})
			case t != target:
				rep.add(SeverityWarning, name, math.NaN(),
					fmt.Errorf("feature %q aggregates %s inside the %s feature set", name, t, target))
			}
		}
	}

	rows := make([]int, 0, len(y))
	for i, val := range y {
		if !math.IsNaN(val) && i < len(X) {
			rows = append(rows, i)
		}
	}
	if len(rows) < 3 {
		v.log(rep)
		return rep
	}

	labels := make([]float64, len(rows))
	for k, i := range rows {
		labels[k] = y[i]
	}
	col := make([]float64, len(rows))
	for j, name := range names {
		for k, i := range rows {
			col[k] = X[i][j]
		}
		r := stat.Correlation(col, labels, nil)
		if math.IsNaN(r) {
			continue
		}
		switch abs := math.Abs(r); {
		case abs > v.opts.ErrorCorrelation:
			rep.add(SeverityError, name, r, &LeakageError{Target: target, Feature: name, Correlation: r})
		case abs > v.opts.WarnCorrelation:
			rep.add(SeverityWarning, name, r,
				fmt.Errorf("feature %q is highly correlated with %s (%.4f)", name, target, r))
		}
	}

	v.log(rep)
	return rep
}

// mentions reports whether a column name refers to target by full name or
// short prefix.
func (v *Validator) mentions(name, target string) bool {
	if name == target {
		return true
	}
	prefix := features.Prefix(target)
	for _, tok := range strings.Split(name, "_") {
		if tok == target || tok == prefix {
			return true
		}
	}
	return false
}

// qualified reports whether a column name carries an aggregate qualifier. A
// qualifier that is also a stat prefix ("min") counts only when a window
// follows it, as in "pts_min_10"; "pts_per_min" stays unqualified.
func (v *Validator) qualified(name string) bool {
	toks := strings.Split(name, "_")
	for i, tok := range toks {
		if !v.qualifiers[tok] {
			continue
		}
		if !v.ambiguous[tok] {
			return true
		}
		if i+1 < len(toks) {
			if _, err := strconv.Atoi(toks[i+1]); err == nil {
				return true
			}
		}
	}
	return false
}

func (v *Validator) log(rep Report) {
	for _, f := range rep.Findings {
		attrs := []any{"target", f.Target}
		if f.Feature != "" {
			attrs = append(attrs, "feature", f.Feature)
		}
		if f.Correlation != 0 {
			attrs = append(attrs, "correlation", f.Correlation)
		}
		if f.Severity == SeverityError {
			v.logger.Error(f.Message, attrs...)
		} else {
			v.logger.Warn(f.Message, attrs...)
		}
	}
}

func (r *Report) add(s Severity, feature string, corr float64, err error) {
	if math.IsNaN(corr) {
		corr = 0
	}
	r.Findings = append(r.Findings, Finding{
		Severity:    s,
		Target:      r.Target,
		Feature:     feature,
		Correlation: corr,
		Message:     err.Error(),
		err:         err,
	})
}
