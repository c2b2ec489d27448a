// Package adapters provides courtcast game-log sources: connectors that read
// per-player box scores from an external system and normalize them into
// gamelog.GameRecord values.
//
// Each source implements the Source interface. Available sources:
//   - CSVSource  - a CSV export, one row per player per game
//   - HTTPSource - any REST endpoint returning JSON, rows located with gjson
//
// Every input row ends in one of three outcomes. A parsed row becomes a
// record. A row that is well formed but unusable (did not play, no player id,
// superseded duplicate) is skipped and its reason kept in the Batch. A
// structurally broken row (unparseable number or date) fails the whole load,
// since it usually means the columns are mapped wrong.
//
// Sources only shape data. Feature building and validation happen upstream.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

// ErrMissingColumns is returned when the input lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// Canonical column names.
const (
	ColPlayerID         = "player_id"
	ColPosition         = "position"
	ColDate             = "game_date"
	ColMatchup          = "matchup"
	ColHome             = "home"
	ColRestDays         = "rest_days"
	ColOpponentStrength = "opponent_strength"
)

// RequiredColumns must be present in every source. Every other statistic,
// targets included, is optional: an absent column decodes as NaN, and the
// trainer rejects only the targets left without labels.
var RequiredColumns = []string{ColPlayerID, ColDate, gamelog.Minutes}

// aliases maps the spellings used by common exports (the NBA stats API,
// scraped CSVs) to canonical column names. Keys are lower case.
var aliases = map[string]string{
	"player_id": ColPlayerID, "playerid": ColPlayerID,
	"position": ColPosition, "pos": ColPosition, "player_position": ColPosition,
	"game_date": ColDate, "date": ColDate,
	"matchup": ColMatchup,
	"home": ColHome, "is_home": ColHome, "home_game": ColHome,
	"rest_days": ColRestDays, "days_rest": ColRestDays,
	"opponent_strength": ColOpponentStrength, "opp_strength": ColOpponentStrength,

	"min": gamelog.Minutes, "minutes": gamelog.Minutes,
	"pts": gamelog.Points, "points": gamelog.Points,
	"reb": gamelog.Rebounds, "rebounds": gamelog.Rebounds,
	"ast": gamelog.Assists, "assists": gamelog.Assists,
	"stl": gamelog.Steals, "steals": gamelog.Steals,
	"blk": gamelog.Blocks, "blocks": gamelog.Blocks,
	"tov": gamelog.Turnovers, "turnovers": gamelog.Turnovers,
	"fg_pct": gamelog.FGPct, "field_goal_pct": gamelog.FGPct,
	"fg3_pct": gamelog.FG3Pct, "three_point_pct": gamelog.FG3Pct,
	"ft_pct": gamelog.FTPct, "free_throw_pct": gamelog.FTPct,
}

// Canonical returns the canonical column name for a header, or "" when the
// header is not recognised.
func Canonical(header string) string {
	return aliases[strings.ToLower(strings.TrimSpace(header))]
}

// Skip reasons.
const (
	SkipDidNotPlay = "did not play"
	SkipNoPlayer   = "missing player id"
	SkipDuplicate  = "duplicate game, later row kept"
)

// Skipped is one input row that did not become a record.
type Skipped struct {
	Row      int    `json:"row"`
	PlayerID string `json:"playerId,omitempty"`
	Reason   string `json:"reason"`
}

// Batch is the result of loading a source.
type Batch struct {
	Source  string
	Records []gamelog.GameRecord
	Skipped []Skipped
}

// SkipCounts tallies skipped rows by reason.
func (b *Batch) SkipCounts() map[string]int {
	out := make(map[string]int)
	for _, s := range b.Skipped {
		out[s.Reason]++
	}
	return out
}

// Source is the interface every game-log connector implements.
//
// Load is synchronous and must respect context cancellation.
type Source interface {
	// Load reads every available game.
	Load(ctx context.Context) (*Batch, error)

	// Name returns a short identifier such as "csv" or "http".
	Name() string
}

// RowError reports a row that could not be parsed.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// getter returns the raw cell for a canonical column and whether the column
// is present for this row.
type getter func(col string) (string, bool)

// parseRecord turns one row into a record. It returns a non-empty skip reason
// for rows that should be dropped, and an error for malformed rows.
func parseRecord(row int, get getter, dateFormat string) (gamelog.GameRecord, string, error) {
	var rec gamelog.GameRecord

	id, _ := get(ColPlayerID)
	rec.PlayerID = strings.TrimSpace(id)
	if rec.PlayerID == "" {
		return rec, SkipNoPlayer, nil
	}

	rawDate, _ := get(ColDate)
	date, err := parseDate(rawDate, dateFormat)
	if err != nil {
		return rec, "", &RowError{Row: row, Column: ColDate, Err: err}
	}
	rec.Date = date

	rawMin, _ := get(gamelog.Minutes)
	minutes, err := parseMinutes(rawMin)
	if err != nil {
		return rec, "", &RowError{Row: row, Column: gamelog.Minutes, Err: err}
	}
	if minutes <= 0 {
		return rec, SkipDidNotPlay, nil
	}
	rec.Minutes = minutes

	for _, stat := range gamelog.Stats {
		if stat == gamelog.Minutes {
			continue
		}
		raw, _ := get(stat)
		v, err := parseFloat(raw)
		if err != nil {
			return rec, "", &RowError{Row: row, Column: stat, Err: err}
		}
		rec.SetStat(stat, v)
	}

	if pos, ok := get(ColPosition); ok {
		rec.Position = strings.TrimSpace(pos)
	}

	if raw, ok := get(ColHome); ok && strings.TrimSpace(raw) != "" {
		home, err := parseBool(raw)
		if err != nil {
			return rec, "", &RowError{Row: row, Column: ColHome, Err: err}
		}
		rec.Home = home
	} else if m, ok := get(ColMatchup); ok {
		// "LAL vs. GSW" is a home game, "LAL @ GSW" an away one.
		rec.Home = strings.Contains(m, "vs.")
	}

	for col, dst := range map[string]*float64{
		ColRestDays:         &rec.RestDays,
		ColOpponentStrength: &rec.OpponentStrength,
	} {
		raw, _ := get(col)
		v, err := parseFloat(raw)
		if err != nil {
			return rec, "", &RowError{Row: row, Column: col, Err: err}
		}
		*dst = v
	}

	return rec, "", nil
}

// finish drops superseded duplicates (same player and date, the later row
// wins) and returns the batch in (player, date) order.
func finish(b *Batch, rows []int) {
	type key struct {
		player string
		date   time.Time
	}
	last := make(map[key]int, len(b.Records))
	for i, r := range b.Records {
		last[key{r.PlayerID, r.Date}] = i
	}

	kept := b.Records[:0]
	for i, r := range b.Records {
		if last[key{r.PlayerID, r.Date}] != i {
			b.Skipped = append(b.Skipped, Skipped{Row: rows[i], PlayerID: r.PlayerID, Reason: SkipDuplicate})
			continue
		}
		kept = append(kept, r)
	}
	b.Records = gamelog.Sort(kept)
	sort.Slice(b.Skipped, func(i, j int) bool { return b.Skipped[i].Row < b.Skipped[j].Row })
}

// Missing values (empty cells, "NaN", "None") decode as NaN.
func parseFloat(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseMinutes accepts decimal minutes and the "MM:SS" clock format. An empty
// cell counts as zero minutes.
func parseMinutes(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	mm, ss, ok := strings.Cut(s, ":")
	if !ok {
		v, err := parseFloat(s)
		if math.IsNaN(v) {
			return 0, err
		}
		return v, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("minutes %q: %w", raw, err)
	}
	sec, err := strconv.Atoi(ss)
	if err != nil {
		return 0, fmt.Errorf("minutes %q: %w", raw, err)
	}
	return float64(m) + float64(sec)/60, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "home", "h":
		return true, nil
	case "0", "false", "f", "no", "n", "away", "a":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

// dateLayouts are tried in order when no explicit format is configured.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"01/02/2006",
}

// parseDate parses a game date and truncates it to the UTC day. format is
// "" (try the common layouts), "unix" or "unix_milli".
func parseDate(raw, format string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	var t time.Time
	switch format {
	case "unix", "unix_milli":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", raw, err)
		}
		if format == "unix" {
			t = time.Unix(int64(v), 0)
		} else {
			t = time.UnixMilli(int64(v))
		}
	case "":
		var err error
		for _, layout := range dateLayouts {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
		}
	default:
		return time.Time{}, fmt.Errorf("unsupported date format: %s", format)
	}

	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
