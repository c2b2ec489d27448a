package adapters

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// New creates a source based on kind and a generic configuration map, as
// passed on the trainer's command line.
//
// Supported kinds:
//   - "csv":  requires "path"; optional "dateFormat"
//   - "http": requires "url" and "recordsPath"; optional "method", "body",
//     "headersPath", "dateFormat", and JSON-encoded "headers" and
//     "templateVars"
func New(kind string, config map[string]string, logger *slog.Logger) (Source, error) {
	switch kind {
	case "csv":
		return newCSV(config, logger)
	case "http":
		return newHTTP(config, logger)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be csv or http)", kind)
	}
}

func newCSV(config map[string]string, logger *slog.Logger) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv source requires 'path' config")
	}
	return &CSVSource{
		Path:       path,
		DateFormat: config["dateFormat"],
		Logger:     logger,
	}, nil
}

func newHTTP(config map[string]string, logger *slog.Logger) (Source, error) {
	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	src := &HTTPSource{
		URL:          config["url"],
		Method:       config["method"],
		Headers:      headers,
		Body:         config["body"],
		RecordsPath:  config["recordsPath"],
		HeadersPath:  config["headersPath"],
		DateFormat:   config["dateFormat"],
		TemplateVars: templateVars,
		Logger:       logger,
	}
	if err := src.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return src, nil
}
