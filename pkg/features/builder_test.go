package features

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/courtcast/pkg/gamelog"
)

var season = time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC)

func games(player string, points ...float64) []gamelog.GameRecord {
	out := make([]gamelog.GameRecord, len(points))
	for i, p := range points {
		out[i] = gamelog.GameRecord{
			PlayerID: player,
			Position: "PG",
			Date:     season.AddDate(0, 0, 2*i),
			Minutes:  30 + float64(i%3),
			Points:   p,
			Rebounds: 4 + float64(i%4),
			Assists:  6 + float64(i%5),
			FGPct:    0.45,
			FG3Pct:   0.35,
			FTPct:    0.8,
			Home:     i%2 == 0,
			RestDays: 1,
		}
	}
	return out
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func TestBuild_NoLookahead(t *testing.T) {
	b := newTestBuilder(t)
	records := games("p1", 12, 18, 25, 9, 30, 22, 14, 27, 19, 21, 16, 24)

	base, err := b.Build(records)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(records); i++ {
		mutated := make([]gamelog.GameRecord, len(records))
		copy(mutated, records)
		mutated[i].Points += 40
		mutated[i].Rebounds += 15
		mutated[i].Assists += 10
		mutated[i].Minutes += 12
		mutated[i].FGPct = 0.9

		got, err := b.Build(mutated)
		if err != nil {
			t.Fatal(err)
		}

		// Row i-1 describes game i.
		if !reflect.DeepEqual(base.Rows[i-1].Values, got.Rows[i-1].Values) {
			t.Errorf("mutating game %d changed its own feature vector", i)
		}
		if got.Rows[i-1].Label(gamelog.Points) == base.Rows[i-1].Label(gamelog.Points) {
			t.Errorf("game %d label did not change", i)
		}
	}
}

func TestBuild_DropsFirstGame(t *testing.T) {
	b := newTestBuilder(t)
	records := append(games("a", 10, 20, 30), games("b", 5, 6)...)

	frame, err := b.Build(records)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", frame.Len())
	}
	for _, r := range frame.Rows {
		if r.Date.Equal(season) {
			t.Errorf("first game of %s kept in frame", r.PlayerID)
		}
	}
}

func TestBuild_ShortHistoryUsesAvailableGames(t *testing.T) {
	b := newTestBuilder(t)
	frame, err := b.Build(games("p", 10, 20, 30, 40, 50))
	if err != nil {
		t.Fatal(err)
	}

	// The fifth game has exactly four prior games.
	row := frame.Rows[3]
	got, ok := row.Value(RollingName(gamelog.Points, 5))
	if !ok {
		t.Fatal("pts_avg_5 undefined with 4 prior games")
	}
	if got != 25 {
		t.Errorf("pts_avg_5 = %v, want 25", got)
	}
	if v, _ := row.Value(SeasonAvgName(gamelog.Points)); v != 25 {
		t.Errorf("season_pts_avg = %v, want 25", v)
	}
	if v, _ := row.Value(GamesPlayed); v != 4 {
		t.Errorf("games_played = %v, want 4", v)
	}
	if _, ok := row.Value("pts_last_zscore"); ok {
		t.Error("zscore defined with fewer than the minimum games")
	}
	if v := row.Label(gamelog.Points); v != 50 {
		t.Errorf("label = %v, want 50", v)
	}
}

func TestBuild_UnorderedHistory(t *testing.T) {
	b := newTestBuilder(t)
	records := games("p", 10, 20)
	records[1].Date = records[0].Date

	if _, err := b.Build(records); !errors.Is(err, gamelog.ErrUnorderedHistory) {
		t.Errorf("error = %v, want ErrUnorderedHistory", err)
	}
}

func TestFeatureSet_TargetIsolation(t *testing.T) {
	b := newTestBuilder(t)
	owner := make(map[string]Spec)
	for _, s := range b.Catalog() {
		owner[s.Name] = s
	}

	for _, target := range gamelog.Targets {
		t.Run(target, func(t *testing.T) {
			names := b.FeatureSet(target)
			if len(names) == 0 {
				t.Fatal("empty feature set")
			}
			for _, name := range names {
				if gamelog.IsTarget(name) {
					t.Errorf("raw target column %q in feature set", name)
				}
				s := owner[name]
				if s.Stat != "" && s.Stat != target && !Shared(s.Stat) {
					t.Errorf("%q derived from %s leaked into %s set", name, s.Stat, target)
				}
				for _, other := range gamelog.Targets {
					if other != target && strings.Contains(name, Prefix(other)+"_") {
						t.Errorf("%q mentions %s in %s set", name, other, target)
					}
				}
			}
		})
	}
}

func TestFeatureSet_PrimaryExtras(t *testing.T) {
	b := newTestBuilder(t)
	has := func(target, name string) bool {
		for _, n := range b.FeatureSet(target) {
			if n == name {
				return true
			}
		}
		return false
	}

	for _, name := range []string{"pts_ema_3", "pts_std_10", "min_x_efficiency", "form_x_baseline"} {
		if !has(gamelog.Points, name) {
			t.Errorf("points set missing %q", name)
		}
		if has(gamelog.Rebounds, name) {
			t.Errorf("rebounds set has primary-only %q", name)
		}
	}
	if !has(gamelog.Rebounds, "reb_over_10_last_5") {
		t.Error("rebounds set missing its streak counter")
	}
	if !has(gamelog.Assists, RollingName(gamelog.Minutes, 10)) {
		t.Error("assists set missing shared minutes average")
	}
}

func TestNext(t *testing.T) {
	b := newTestBuilder(t)
	history := games("p", 25, 5, 22)
	up := Upcoming{
		Date:             season.AddDate(0, 0, 10),
		Home:             true,
		RestDays:         2,
		OpponentStrength: 0.6,
	}

	row, err := b.Next(history, up)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	want := map[string]float64{
		RollingName(gamelog.Points, 3):  (25 + 5 + 22) / 3.0,
		SeasonAvgName(gamelog.Points):   (25 + 5 + 22) / 3.0,
		GamesPlayed:                     3,
		IsHome:                          1,
		RestDays:                        2,
		WellRested:                      0,
		BackToBack:                      0,
		HomeXRested:                     2,
		OpponentStrength:                0.6,
		PosGuard:                        1,
		PosCenter:                       0,
		"pts_over_20_last_5":            2,
		"pts_under_10_last_5":           1,
		RollingName(gamelog.Minutes, 3): 31,
	}
	for name, w := range want {
		got, ok := row.Value(name)
		if !ok {
			t.Errorf("%s undefined", name)
			continue
		}
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, w)
		}
	}
	if len(row.Labels) != 0 {
		t.Errorf("inference row has labels: %v", row.Labels)
	}
}

func TestNext_EMA(t *testing.T) {
	b := newTestBuilder(t)
	row, err := b.Next(games("p", 10, 20), Upcoming{RestDays: 1})
	if err != nil {
		t.Fatal(err)
	}
	// span 3 -> alpha 0.5: (20*1 + 10*0.5) / 1.5
	got, _ := row.Value("pts_ema_3")
	if math.Abs(got-25.0/1.5) > 1e-9 {
		t.Errorf("pts_ema_3 = %v, want %v", got, 25.0/1.5)
	}
}

func TestNext_Errors(t *testing.T) {
	b := newTestBuilder(t)

	if _, err := b.Next(nil, Upcoming{}); !errors.Is(err, gamelog.ErrNoHistory) {
		t.Errorf("empty history error = %v", err)
	}

	history := games("p", 10, 20)
	if _, err := b.Next(history, Upcoming{Date: season}); !errors.Is(err, gamelog.ErrUnorderedHistory) {
		t.Errorf("stale upcoming date error = %v", err)
	}

	mixed := append(games("a", 1), games("b", 2)...)
	if _, err := b.Next(mixed, Upcoming{}); err == nil {
		t.Error("multi-player history accepted")
	}
}

func TestRestDays(t *testing.T) {
	b := newTestBuilder(t)
	history := games("p", 10, 20)

	tests := []struct {
		name string
		rest float64
		date time.Time
		want float64
		b2b  float64
	}{
		{"clipped high", 12, time.Time{}, 7, 0},
		{"clipped low", -3, time.Time{}, 0, 1},
		{"derived from dates", math.NaN(), history[1].Date.AddDate(0, 0, 1), 0, 1},
		{"derived gap", math.NaN(), history[1].Date.AddDate(0, 0, 4), 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := b.Next(history, Upcoming{Date: tt.date, RestDays: tt.rest})
			if err != nil {
				t.Fatal(err)
			}
			if got, _ := row.Value(RestDays); got != tt.want {
				t.Errorf("rest_days = %v, want %v", got, tt.want)
			}
			if got, _ := row.Value(BackToBack); got != tt.b2b {
				t.Errorf("back_to_back = %v, want %v", got, tt.b2b)
			}
		})
	}
}

func TestRow_Vector(t *testing.T) {
	r := Row{Values: map[string]float64{"a": 1, "c": 3}}
	vec, missing := r.Vector([]string{"a", "b", "c"})

	if !reflect.DeepEqual(vec, []float64{1, 0, 3}) {
		t.Errorf("vec = %v", vec)
	}
	if !reflect.DeepEqual(missing, []string{"b"}) {
		t.Errorf("missing = %v", missing)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"unknown primary", func(o *Options) { o.Primary = "steals" }},
		{"no windows", func(o *Options) { o.Windows = nil }},
		{"zero window", func(o *Options) { o.Windows = []int{0} }},
		{"short not shorter", func(o *Options) { o.ShortWindow = o.LongWindow }},
		{"streak inverted", func(o *Options) { o.Streaks[gamelog.Assists] = Streak{Over: 1, Under: 5} }},
		{"missing streak", func(o *Options) { delete(o.Streaks, gamelog.Rebounds) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}

	if _, err := NewBuilder(Options{Primary: gamelog.Points}, nil); err == nil {
		t.Error("NewBuilder accepted invalid options")
	}
}
