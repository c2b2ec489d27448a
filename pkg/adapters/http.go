package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPSource calls a REST endpoint and extracts game logs from the JSON
// response with gjson paths.
//
// Two response shapes are supported:
//   - an array of objects, one per game, located by RecordsPath
//     (e.g. "data.games");
//   - a table with a header array and row arrays, as returned by the NBA
//     stats API: HeadersPath locates the column names
//     (e.g. "resultSets.0.headers") and RecordsPath the rows
//     (e.g. "resultSets.0.rowSet").
//
// Example configuration:
//
//	src := &HTTPSource{
//	    URL: "https://stats.example.com/gamelogs",
//	    Method: "POST",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	        "Content-Type": "application/json",
//	    },
//	    Body: `{"season": "{{.Season}}"}`,
//	    RecordsPath: "resultSets.0.rowSet",
//	    HeadersPath: "resultSets.0.headers",
//	    TemplateVars: map[string]string{"Token": "...", "Season": "2024-25"},
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers. Values may use template variables.
	Headers map[string]string

	// Body is the request body template. Variables come from TemplateVars
	// plus {{.Today}} (YYYY-MM-DD, UTC).
	Body string

	// RecordsPath is the gjson path to the array of games (required).
	RecordsPath string

	// HeadersPath is the gjson path to the column names when each game is
	// an array rather than an object.
	HeadersPath string

	// DateFormat is "" (auto-detect), "unix" or "unix_milli".
	DateFormat string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers.
	TemplateVars map[string]string

	// Logger is optional; nil falls back to slog.Default.
	Logger *slog.Logger
}

func (h *HTTPSource) Name() string { return "http" }

// Load implements Source.
func (h *HTTPSource) Load(ctx context.Context) (*Batch, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	templateData := map[string]any{
		"Today": time.Now().UTC().Format(time.DateOnly),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, errors.New("response is not valid JSON")
	}

	records := gjson.GetBytes(respBody, h.RecordsPath)
	if !records.IsArray() {
		return nil, fmt.Errorf("records path %q does not point to an array", h.RecordsPath)
	}

	var columns map[string]int
	if h.HeadersPath != "" {
		headers := gjson.GetBytes(respBody, h.HeadersPath)
		if !headers.IsArray() {
			return nil, fmt.Errorf("headers path %q does not point to an array", h.HeadersPath)
		}
		columns = make(map[string]int)
		for i, name := range headers.Array() {
			if col := Canonical(name.String()); col != "" {
				if _, dup := columns[col]; !dup {
					columns[col] = i
				}
			}
		}
		if err := checkColumns(func(col string) bool { _, ok := columns[col]; return ok }); err != nil {
			return nil, err
		}
	}

	batch := &Batch{Source: h.Name()}
	var rows []int
	for i, item := range records.Array() {
		var get getter
		if columns != nil {
			cells := item.Array()
			get = func(col string) (string, bool) {
				j, ok := columns[col]
				if !ok || j >= len(cells) {
					return "", false
				}
				return cellString(cells[j]), true
			}
		} else {
			fields := objectFields(item)
			if i == 0 {
				if err := checkColumns(func(col string) bool { _, ok := fields[col]; return ok }); err != nil {
					return nil, err
				}
			}
			get = func(col string) (string, bool) {
				v, ok := fields[col]
				return v, ok
			}
		}

		rec, reason, err := parseRecord(i, get, h.DateFormat)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			batch.Skipped = append(batch.Skipped, Skipped{Row: i, PlayerID: rec.PlayerID, Reason: reason})
			continue
		}
		batch.Records = append(batch.Records, rec)
		rows = append(rows, i)
	}

	finish(batch, rows)
	logLoad(h.Logger, batch)
	return batch, nil
}

// ValidateConfig checks if the source configuration is valid.
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.RecordsPath == "" {
		return errors.New("recordsPath is required")
	}
	switch h.DateFormat {
	case "", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid dateFormat: %s (must be empty, unix, or unix_milli)", h.DateFormat)
	}
	return nil
}

func checkColumns(has func(string) bool) error {
	var missing []string
	for _, col := range RequiredColumns {
		if !has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}
	return nil
}

// objectFields flattens one JSON object into canonical column -> raw value.
func objectFields(item gjson.Result) map[string]string {
	fields := make(map[string]string)
	item.ForEach(func(key, value gjson.Result) bool {
		if col := Canonical(key.String()); col != "" {
			if _, dup := fields[col]; !dup {
				fields[col] = cellString(value)
			}
		}
		return true
	})
	return fields
}

// cellString renders a JSON value the way a CSV cell would hold it. Numbers
// keep their source text so integers do not gain a fractional part.
func cellString(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.Number:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.String()
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
