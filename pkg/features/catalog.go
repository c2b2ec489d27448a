package features

import (
	"fmt"
	"math"
	"strconv"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// Kind classifies a feature by how it may be shared between targets.
type Kind int

const (
	// Context features describe the game being played (venue, rest, calendar,
	// role) and are shared by every target.
	Context Kind = iota
	// Aggregate features summarise earlier games of a single statistic.
	Aggregate
	// Interaction features combine aggregates for the primary target.
	Interaction
)

func (k Kind) String() string {
	switch k {
	case Context:
		return "context"
	case Aggregate:
		return "aggregate"
	case Interaction:
		return "interaction"
	}
	return "unknown"
}

// Spec describes one feature column.
type Spec struct {
	Name string
	// Stat is the statistic the feature is derived from, or "" for context.
	Stat string
	Kind Kind

	eval func(h *history, i int) float64
}

var prefixes = map[string]string{
	gamelog.Points:    "pts",
	gamelog.Rebounds:  "reb",
	gamelog.Assists:   "ast",
	gamelog.Minutes:   "min",
	gamelog.Steals:    "stl",
	gamelog.Blocks:    "blk",
	gamelog.Turnovers: "tov",
	gamelog.FGPct:     "fg_pct",
	gamelog.FG3Pct:    "fg3_pct",
	gamelog.FTPct:     "ft_pct",
}

// Prefix returns the short column prefix for a statistic ("pts" for points).
func Prefix(stat string) string {
	if p, ok := prefixes[stat]; ok {
		return p
	}
	return stat
}

// shared statistics are predictive of every target and may appear in any
// target's feature set.
var shared = map[string]bool{
	gamelog.Minutes: true,
	gamelog.FGPct:   true,
	gamelog.FG3Pct:  true,
	gamelog.FTPct:   true,
}

// Shared reports whether aggregates of stat are allowed in every target's set.
func Shared(stat string) bool {
	return shared[stat]
}

// RollingName is the column name of the lagged w-game average of stat.
func RollingName(stat string, w int) string {
	return fmt.Sprintf("%s_avg_%d", Prefix(stat), w)
}

// SeasonAvgName is the column name of the lagged season-to-date mean of stat.
func SeasonAvgName(stat string) string {
	return "season_" + Prefix(stat) + "_avg"
}

// SeasonStdName is the column name of the lagged season-to-date std of stat.
func SeasonStdName(stat string) string {
	return "season_" + Prefix(stat) + "_std"
}

// Context column names.
const (
	IsHome           = "is_home"
	RestDays         = "rest_days"
	BackToBack       = "back_to_back"
	WellRested       = "well_rested"
	HomeXRested      = "home_x_rested"
	OpponentStrength = "opponent_strength"
	DayOfWeek        = "day_of_week"
	Month            = "month"
	GamesPlayed      = "games_played"
	PosGuard         = "pos_guard"
	PosForward       = "pos_forward"
	PosCenter        = "pos_center"
)

// ContextNames lists the columns overridden by the upcoming-game context at
// inference time.
var ContextNames = []string{IsHome, RestDays, BackToBack, WellRested, HomeXRested, OpponentStrength}

func newCatalog(o Options) []Spec {
	var specs []Spec
	add := func(name, stat string, kind Kind, eval func(h *history, i int) float64) {
		specs = append(specs, Spec{Name: name, Stat: stat, Kind: kind, eval: eval})
	}

	add(IsHome, "", Context, func(h *history, i int) float64 {
		return boolFloat(h.records[i].Home)
	})
	add(RestDays, "", Context, func(h *history, i int) float64 {
		return h.rest[i]
	})
	add(BackToBack, "", Context, func(h *history, i int) float64 {
		if math.IsNaN(h.rest[i]) {
			return math.NaN()
		}
		return boolFloat(h.rest[i] == 0)
	})
	add(WellRested, "", Context, func(h *history, i int) float64 {
		if math.IsNaN(h.rest[i]) {
			return math.NaN()
		}
		return boolFloat(h.rest[i] >= 3)
	})
	add(HomeXRested, "", Context, func(h *history, i int) float64 {
		return boolFloat(h.records[i].Home) * math.Min(h.rest[i], 4)
	})
	add(OpponentStrength, "", Context, func(h *history, i int) float64 {
		return h.records[i].OpponentStrength
	})
	add(DayOfWeek, "", Context, func(h *history, i int) float64 {
		d := h.records[i].Date
		if d.IsZero() {
			return math.NaN()
		}
		// Monday = 0.
		return float64((int(d.Weekday()) + 6) % 7)
	})
	add(Month, "", Context, func(h *history, i int) float64 {
		d := h.records[i].Date
		if d.IsZero() {
			return math.NaN()
		}
		return float64(d.Month())
	})
	add(GamesPlayed, "", Context, func(_ *history, i int) float64 {
		return float64(i)
	})
	for _, pos := range []struct{ name, category string }{
		{PosGuard, "guard"},
		{PosForward, "forward"},
		{PosCenter, "center"},
	} {
		add(pos.name, "", Context, func(h *history, i int) float64 {
			return boolFloat(h.category[i] == pos.category)
		})
	}

	stats := append(append([]string{}, gamelog.Targets...), gamelog.Minutes, gamelog.FGPct, gamelog.FG3Pct, gamelog.FTPct)
	for _, stat := range stats {
		for _, w := range o.Windows {
			add(RollingName(stat, w), stat, Aggregate, func(h *history, i int) float64 {
				return mean(trailing(h.series[stat], i, w), 1)
			})
		}
		add(SeasonAvgName(stat), stat, Aggregate, func(h *history, i int) float64 {
			return mean(trailing(h.series[stat], i, i), 1)
		})
		add(SeasonStdName(stat), stat, Aggregate, func(h *history, i int) float64 {
			return stddev(trailing(h.series[stat], i, i), 2)
		})
	}

	add("min_volatility", gamelog.Minutes, Aggregate, func(h *history, i int) float64 {
		return stddev(trailing(h.series[gamelog.Minutes], i, o.FormWindow), 2)
	})
	add("min_trend", gamelog.Minutes, Aggregate, func(h *history, i int) float64 {
		s := h.series[gamelog.Minutes]
		return mean(trailing(s, i, o.ShortWindow), 1) - mean(trailing(s, i, o.LongWindow), 3)
	})
	add("fg_pct_volatility", gamelog.FGPct, Aggregate, func(h *history, i int) float64 {
		return stddev(trailing(h.series[gamelog.FGPct], i, o.DispersionWindow), 3)
	})

	for _, t := range gamelog.Targets {
		addTargetMomentum(add, o, t)
	}

	addPrimary(add, o, o.Primary)
	return specs
}

func addTargetMomentum(add func(string, string, Kind, func(*history, int) float64), o Options, t string) {
	p := Prefix(t)
	streak := o.Streaks[t]

	add("season_"+p+"_cv", t, Aggregate, func(h *history, i int) float64 {
		return seasonCV(h.series[t], i)
	})
	add(fmt.Sprintf("%s_momentum_%dv%d", p, o.ShortWindow, o.LongWindow), t, Aggregate, func(h *history, i int) float64 {
		return momentum(h.series[t], i, o)
	})
	add(p+"_vs_season", t, Aggregate, func(h *history, i int) float64 {
		s := h.series[t]
		return mean(trailing(s, i, o.FormWindow), 1) - mean(trailing(s, i, i), 1)
	})
	add(fmt.Sprintf("%s_over_%s_last_%d", p, formatThreshold(streak.Over), o.StreakWindow), t, Aggregate, func(h *history, i int) float64 {
		return count(trailing(h.series[t], i, o.StreakWindow), func(v float64) bool { return v > streak.Over })
	})
	add(fmt.Sprintf("%s_under_%s_last_%d", p, formatThreshold(streak.Under), o.StreakWindow), t, Aggregate, func(h *history, i int) float64 {
		return count(trailing(h.series[t], i, o.StreakWindow), func(v float64) bool { return v < streak.Under })
	})
	add(p+"_last_zscore", t, Aggregate, func(h *history, i int) float64 {
		s := h.series[t]
		window := trailing(s, i, o.ZScoreWindow)
		mu := mean(window, o.ZScoreMinGames)
		sd := stddev(window, o.ZScoreMinGames)
		return (lastValue(s, i) - mu) / (sd + 0.1)
	})
}

func addPrimary(add func(string, string, Kind, func(*history, int) float64), o Options, t string) {
	p := Prefix(t)

	for _, span := range o.EMASpans {
		add(fmt.Sprintf("%s_ema_%d", p, span), t, Aggregate, func(h *history, i int) float64 {
			return ema(h.series[t], i, span)
		})
	}
	add(fmt.Sprintf("%s_std_%d", p, o.DispersionWindow), t, Aggregate, func(h *history, i int) float64 {
		return stddev(trailing(h.series[t], i, o.DispersionWindow), 2)
	})
	add(fmt.Sprintf("%s_max_%d", p, o.DispersionWindow), t, Aggregate, func(h *history, i int) float64 {
		return maximum(trailing(h.series[t], i, o.DispersionWindow))
	})
	add(fmt.Sprintf("%s_min_%d", p, o.DispersionWindow), t, Aggregate, func(h *history, i int) float64 {
		return minimum(trailing(h.series[t], i, o.DispersionWindow))
	})
	for _, w := range o.rateWindows() {
		add(fmt.Sprintf("%s_per_min_avg_%d", p, w), t, Aggregate, func(h *history, i int) float64 {
			return mean(trailing(h.perMinute, i, w), 1)
		})
	}

	add("min_x_efficiency", t, Interaction, func(h *history, i int) float64 {
		return mean(trailing(h.series[gamelog.Minutes], i, o.FormWindow), 1) *
			mean(trailing(h.series[gamelog.FGPct], i, o.FormWindow), 1)
	})
	add("momentum_x_consistency", t, Interaction, func(h *history, i int) float64 {
		return momentum(h.series[t], i, o) * (1 - seasonCV(h.series[t], i))
	})
	add("form_x_baseline", t, Interaction, func(h *history, i int) float64 {
		s := h.series[t]
		return mean(trailing(s, i, o.FormWindow), 1) * mean(trailing(s, i, i), 1) / 100
	})
}

func momentum(s []float64, i int, o Options) float64 {
	return mean(trailing(s, i, o.ShortWindow), 1) - mean(trailing(s, i, o.LongWindow), 1)
}

// seasonCV is the season-to-date coefficient of variation, offset so a
// zero-mean history does not divide by zero.
func seasonCV(s []float64, i int) float64 {
	prior := trailing(s, i, i)
	return stddev(prior, 2) / (mean(prior, 1) + 0.1)
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
