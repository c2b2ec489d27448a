package features

import (
	"fmt"
	"slices"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// Streak holds the over/under thresholds used to count hot and cold games.
type Streak struct {
	Over  float64 `json:"over" koanf:"over"`
	Under float64 `json:"under" koanf:"under"`
}

// Options controls which aggregates the Builder produces.
type Options struct {
	// Primary is the target that receives the extended feature set
	// (EMA, dispersion, per-minute rates and interactions).
	Primary string `json:"primary" koanf:"primary"`

	Windows  []int `json:"windows" koanf:"windows"`
	EMASpans []int `json:"emaSpans" koanf:"ema_spans"`

	ShortWindow      int `json:"shortWindow" koanf:"short_window"`
	FormWindow       int `json:"formWindow" koanf:"form_window"`
	LongWindow       int `json:"longWindow" koanf:"long_window"`
	DispersionWindow int `json:"dispersionWindow" koanf:"dispersion_window"`
	StreakWindow     int `json:"streakWindow" koanf:"streak_window"`
	ZScoreWindow     int `json:"zscoreWindow" koanf:"zscore_window"`
	ZScoreMinGames   int `json:"zscoreMinGames" koanf:"zscore_min_games"`

	// MaxRestDays caps rest days; anything longer is treated as fully rested.
	MaxRestDays float64 `json:"maxRestDays" koanf:"max_rest_days"`

	Streaks map[string]Streak `json:"streaks" koanf:"streaks"`
}

// DefaultOptions returns the feature configuration courtcast ships with.
func DefaultOptions() Options {
	return Options{
		Primary:          gamelog.Points,
		Windows:          []int{3, 5, 10, 15, 20},
		EMASpans:         []int{3, 5, 10},
		ShortWindow:      3,
		FormWindow:       5,
		LongWindow:       10,
		DispersionWindow: 10,
		StreakWindow:     5,
		ZScoreWindow:     20,
		ZScoreMinGames:   5,
		MaxRestDays:      7,
		Streaks: map[string]Streak{
			gamelog.Points:   {Over: 20, Under: 10},
			gamelog.Rebounds: {Over: 10, Under: 3},
			gamelog.Assists:  {Over: 8, Under: 2},
		},
	}
}

// Validate checks that the options describe a buildable feature set.
func (o Options) Validate() error {
	if !gamelog.IsTarget(o.Primary) {
		return fmt.Errorf("primary target %q is not a known target", o.Primary)
	}
	if len(o.Windows) == 0 {
		return fmt.Errorf("at least one rolling window is required")
	}
	for _, w := range o.Windows {
		if w <= 0 {
			return fmt.Errorf("rolling window must be > 0, got %d", w)
		}
	}
	for _, s := range o.EMASpans {
		if s <= 0 {
			return fmt.Errorf("ema span must be > 0, got %d", s)
		}
	}

	for name, v := range map[string]int{
		"short window":      o.ShortWindow,
		"form window":       o.FormWindow,
		"long window":       o.LongWindow,
		"dispersion window": o.DispersionWindow,
		"streak window":     o.StreakWindow,
		"zscore window":     o.ZScoreWindow,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", name, v)
		}
	}
	if o.ShortWindow >= o.LongWindow {
		return fmt.Errorf("short window (%d) must be shorter than long window (%d)", o.ShortWindow, o.LongWindow)
	}
	if o.ZScoreMinGames < 2 || o.ZScoreMinGames > o.ZScoreWindow {
		return fmt.Errorf("zscore min games must be in [2, %d], got %d", o.ZScoreWindow, o.ZScoreMinGames)
	}
	if o.MaxRestDays < 0 {
		return fmt.Errorf("max rest days must be >= 0, got %v", o.MaxRestDays)
	}

	for _, t := range gamelog.Targets {
		s, ok := o.Streaks[t]
		if !ok {
			return fmt.Errorf("missing streak thresholds for %s", t)
		}
		if s.Under >= s.Over {
			return fmt.Errorf("streak thresholds for %s: under (%v) must be below over (%v)", t, s.Under, s.Over)
		}
	}
	return nil
}

// rateWindows returns the windows used for per-minute rates: every configured
// window up to the long window.
func (o Options) rateWindows() []int {
	var out []int
	for _, w := range o.Windows {
		if w <= o.LongWindow {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
