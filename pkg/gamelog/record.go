// Package gamelog defines the per-player, per-game box-score record that every
// other courtcast package consumes, along with the ordering rules the feature
// builder depends on.
//
// A history is a slice of GameRecord values. Within one player the records must
// be strictly increasing by Date: every windowed statistic downstream assumes
// that position i in the sorted slice is the i-th game the player played.
package gamelog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Raw statistic names. These double as target names for the three predicted
// quantities (Points, Rebounds, Assists).
const (
	Points    = "points"
	Rebounds  = "rebounds"
	Assists   = "assists"
	Minutes   = "minutes"
	Steals    = "steals"
	Blocks    = "blocks"
	Turnovers = "turnovers"
	FGPct     = "fg_pct"
	FG3Pct    = "fg3_pct"
	FTPct     = "ft_pct"
)

// Targets lists the predicted statistics in their canonical order.
var Targets = []string{Points, Rebounds, Assists}

// Stats lists every raw per-game statistic carried by a GameRecord.
var Stats = []string{Points, Rebounds, Assists, Minutes, Steals, Blocks, Turnovers, FGPct, FG3Pct, FTPct}

var (
	// ErrUnorderedHistory is returned when a player has two games on the same date.
	ErrUnorderedHistory = errors.New("gamelog: dates must be strictly increasing per player")

	// ErrNoHistory is returned when an operation needs at least one game.
	ErrNoHistory = errors.New("gamelog: empty history")
)

// GameRecord is one row of a player's game log.
type GameRecord struct {
	PlayerID string    `json:"playerId"`
	Position string    `json:"position,omitempty"`
	Date     time.Time `json:"date"`

	Minutes   float64 `json:"minutes"`
	Points    float64 `json:"points"`
	Rebounds  float64 `json:"rebounds"`
	Assists   float64 `json:"assists"`
	Steals    float64 `json:"steals"`
	Blocks    float64 `json:"blocks"`
	Turnovers float64 `json:"turnovers"`

	FGPct  float64 `json:"fgPct"`
	FG3Pct float64 `json:"fg3Pct"`
	FTPct  float64 `json:"ftPct"`

	Home             bool    `json:"home"`
	RestDays         float64 `json:"restDays"`
	OpponentStrength float64 `json:"opponentStrength"`
}

// Stat returns the raw value of the named statistic. Unknown names yield NaN.
func (g GameRecord) Stat(name string) float64 {
	switch name {
	case Points:
		return g.Points
	case Rebounds:
		return g.Rebounds
	case Assists:
		return g.Assists
	case Minutes:
		return g.Minutes
	case Steals:
		return g.Steals
	case Blocks:
		return g.Blocks
	case Turnovers:
		return g.Turnovers
	case FGPct:
		return g.FGPct
	case FG3Pct:
		return g.FG3Pct
	case FTPct:
		return g.FTPct
	default:
		return math.NaN()
	}
}

// SetStat assigns the named statistic. Unknown names are ignored.
func (g *GameRecord) SetStat(name string, v float64) {
	switch name {
	case Points:
		g.Points = v
	case Rebounds:
		g.Rebounds = v
	case Assists:
		g.Assists = v
	case Minutes:
		g.Minutes = v
	case Steals:
		g.Steals = v
	case Blocks:
		g.Blocks = v
	case Turnovers:
		g.Turnovers = v
	case FGPct:
		g.FGPct = v
	case FG3Pct:
		g.FG3Pct = v
	case FTPct:
		g.FTPct = v
	}
}

// IsTarget reports whether name is one of the predicted statistics.
func IsTarget(name string) bool {
	for _, t := range Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Sort orders records by (PlayerID, Date) without modifying the input slice.
func Sort(records []GameRecord) []GameRecord {
	out := make([]GameRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlayerID != out[j].PlayerID {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// GroupByPlayer sorts records and splits them into per-player histories.
// Player order in the result is ascending by PlayerID.
//
// Returns ErrUnorderedHistory if a player has two games with the same date.
// Undated records keep their input order and are not checked.
func GroupByPlayer(records []GameRecord) ([][]GameRecord, error) {
	sorted := Sort(records)

	var groups [][]GameRecord
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].PlayerID == sorted[start].PlayerID {
			prev, cur := sorted[i-1].Date, sorted[i].Date
			if !cur.IsZero() && !cur.After(prev) {
				return nil, fmt.Errorf("%w: player %q on %s",
					ErrUnorderedHistory, sorted[i].PlayerID, sorted[i].Date.Format(time.DateOnly))
			}
			continue
		}
		groups = append(groups, sorted[start:i])
		start = i
	}

	return groups, nil
}
