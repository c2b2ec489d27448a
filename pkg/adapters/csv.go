package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CSVSource reads game logs from a CSV file with a header row. Headers are
// matched case-insensitively against the canonical names and common aliases
// (PTS, REB, AST, MIN, GAME_DATE, ...); unknown columns are ignored.
type CSVSource struct {
	// Path is the file to read.
	Path string

	// Reader is read instead of Path when set.
	Reader io.Reader

	// DateFormat is "" (auto-detect), "unix" or "unix_milli".
	DateFormat string

	// Logger is optional; nil falls back to slog.Default.
	Logger *slog.Logger
}

func (s *CSVSource) Name() string { return "csv" }

// Load implements Source.
func (s *CSVSource) Load(ctx context.Context) (*Batch, error) {
	in := s.Reader
	if in == nil {
		if s.Path == "" {
			return nil, errors.New("csv source: path is required")
		}
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.Path, err)
		}
		defer f.Close()
		in = f
	}

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if col := Canonical(h); col != "" {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}

	batch := &Batch{Source: s.Name()}
	var rows []int
	line := 1
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(fields) == 1 && fields[0] == "" {
			continue
		}

		get := func(col string) (string, bool) {
			i, ok := index[col]
			if !ok || i >= len(fields) {
				return "", false
			}
			return fields[i], true
		}
		rec, reason, err := parseRecord(line, get, s.DateFormat)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			batch.Skipped = append(batch.Skipped, Skipped{Row: line, PlayerID: rec.PlayerID, Reason: reason})
			continue
		}
		batch.Records = append(batch.Records, rec)
		rows = append(rows, line)
	}

	finish(batch, rows)
	logLoad(s.Logger, batch)
	return batch, nil
}

func logLoad(logger *slog.Logger, b *Batch) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("game logs loaded",
		"source", b.Source,
		"records", len(b.Records),
		"skipped", len(b.Skipped),
		"skip_reasons", b.SkipCounts(),
	)
}
