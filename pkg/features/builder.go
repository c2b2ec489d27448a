// Package features turns per-player game logs into lagged feature vectors.
//
// Every aggregate attached to game i is computed from games 0..i-1 of the same
// player; game i's own box score is never read when building its row. The first
// game of each player has no lookback and is dropped from training frames.
//
// Each target gets its own column subset (see Builder.FeatureSet): context
// columns, aggregates of that target's own statistic, and aggregates of the
// shared statistics (minutes and shooting percentages). Aggregates of another
// target never appear.
package features

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// Upcoming is the context of the game being forecast. These values are known
// before tip-off and replace the context of the last historical game.
type Upcoming struct {
	Date             time.Time
	Position         string
	Home             bool
	RestDays         float64
	OpponentStrength float64
}

// Builder computes feature frames. It is immutable after construction and safe
// for concurrent use.
type Builder struct {
	opts    Options
	catalog []Spec
	logger  *slog.Logger
}

// NewBuilder validates opts and prepares the feature catalog.
func NewBuilder(opts Options, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("feature options: %w", err)
	}

	catalog := newCatalog(opts)
	seen := make(map[string]bool, len(catalog))
	for _, s := range catalog {
		if seen[s.Name] {
			return nil, fmt.Errorf("feature options: duplicate feature %q", s.Name)
		}
		seen[s.Name] = true
	}

	return &Builder{opts: opts, catalog: catalog, logger: logger}, nil
}

// Options returns the options the builder was created with.
func (b *Builder) Options() Options {
	return b.opts
}

// Catalog returns every feature the builder produces, in column order.
func (b *Builder) Catalog() []Spec {
	out := make([]Spec, len(b.catalog))
	copy(out, b.catalog)
	return out
}

// FeatureSet returns the ordered column names a model for target may use.
func (b *Builder) FeatureSet(target string) []string {
	var names []string
	for _, s := range b.catalog {
		if s.Stat == "" || s.Stat == target || shared[s.Stat] {
			names = append(names, s.Name)
		}
	}
	return names
}

// Build computes a training frame from records of any number of players.
// Records need not be sorted, but each player's dates must be unique.
func (b *Builder) Build(records []gamelog.GameRecord) (*Frame, error) {
	groups, err := gamelog.GroupByPlayer(records)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Rows: make([]Row, 0, len(records))}
	for _, games := range groups {
		h := b.newHistory(games)
		for i := 1; i < len(games); i++ {
			row := b.row(h, i)
			row.Labels = make(map[string]float64, len(gamelog.Targets))
			for _, t := range gamelog.Targets {
				if v := games[i].Stat(t); !math.IsNaN(v) {
					row.Labels[t] = v
				}
			}
			frame.Rows = append(frame.Rows, row)
		}
	}

	b.logger.Debug("built feature frame",
		"players", len(groups),
		"records", len(records),
		"rows", frame.Len(),
		"features", len(b.catalog),
	)
	return frame, nil
}

// Next builds the feature row for a player's upcoming game. history must
// belong to a single player; it is sorted here. The upcoming game is appended
// as a synthetic record with no box score, so every aggregate uses all of the
// player's games.
func (b *Builder) Next(history []gamelog.GameRecord, up Upcoming) (Row, error) {
	if len(history) == 0 {
		return Row{}, gamelog.ErrNoHistory
	}
	groups, err := gamelog.GroupByPlayer(history)
	if err != nil {
		return Row{}, err
	}
	if len(groups) != 1 {
		return Row{}, fmt.Errorf("history spans %d players, want 1", len(groups))
	}

	games := groups[0]
	last := games[len(games)-1]
	if !up.Date.IsZero() && !last.Date.IsZero() && !up.Date.After(last.Date) {
		return Row{}, fmt.Errorf("%w: upcoming game %s is not after last game %s",
			gamelog.ErrUnorderedHistory, up.Date.Format(time.DateOnly), last.Date.Format(time.DateOnly))
	}

	position := up.Position
	if position == "" {
		position = last.Position
	}

	next := gamelog.GameRecord{
		PlayerID:         last.PlayerID,
		Position:         position,
		Date:             up.Date,
		Home:             up.Home,
		RestDays:         up.RestDays,
		OpponentStrength: up.OpponentStrength,
	}
	for _, stat := range gamelog.Stats {
		next.SetStat(stat, math.NaN())
	}

	all := make([]gamelog.GameRecord, 0, len(games)+1)
	all = append(append(all, games...), next)

	return b.row(b.newHistory(all), len(games)), nil
}

func (b *Builder) row(h *history, i int) Row {
	rec := h.records[i]
	values := make(map[string]float64, len(b.catalog))
	for _, s := range b.catalog {
		v := s.eval(h, i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values[s.Name] = v
	}
	return Row{
		PlayerID: rec.PlayerID,
		Position: gamelog.NormalizePosition(rec.Position),
		Date:     rec.Date,
		Values:   values,
	}
}

// history is one player's games split into per-statistic series.
type history struct {
	records   []gamelog.GameRecord
	series    map[string][]float64
	perMinute []float64
	rest      []float64
	category  []string
}

func (b *Builder) newHistory(games []gamelog.GameRecord) *history {
	h := &history{
		records:   games,
		series:    make(map[string][]float64, len(gamelog.Stats)),
		perMinute: make([]float64, len(games)),
		rest:      make([]float64, len(games)),
		category:  make([]string, len(games)),
	}
	for _, stat := range gamelog.Stats {
		s := make([]float64, len(games))
		for i, g := range games {
			s[i] = g.Stat(stat)
		}
		h.series[stat] = s
	}

	primary := h.series[b.opts.Primary]
	for i, g := range games {
		h.perMinute[i] = primary[i] / (g.Minutes + 0.1)
		h.rest[i] = b.restDays(games, i)
		h.category[i] = gamelog.Category(gamelog.NormalizePosition(g.Position))
	}
	return h
}

// restDays clips the recorded rest to [0, MaxRestDays]. When the record has no
// rest value it is derived from the gap to the previous game.
func (b *Builder) restDays(games []gamelog.GameRecord, i int) float64 {
	r := games[i].RestDays
	if math.IsNaN(r) {
		if i == 0 || games[i].Date.IsZero() || games[i-1].Date.IsZero() {
			return math.NaN()
		}
		r = games[i].Date.Sub(games[i-1].Date).Hours()/24 - 1
	}
	return math.Max(0, math.Min(r, b.opts.MaxRestDays))
}
