// Package manifest loads the analysis manifest that documents the
// analytical views available to the auditor agent. The manifest is a
// JSON array generated from the warehouse's view metadata catalog and
// is embedded verbatim into the auditor's system prompt.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// manifestSchema validates the manifest document shape.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["analysis_type", "sql_template_path"],
    "properties": {
      "analysis_type": {"type": "string", "minLength": 1},
      "sql_template_path": {"type": "string", "minLength": 1},
      "view_name": {"type": "string"},
      "description": {"type": "string"},
      "udf_required": {"type": "boolean"}
    }
  }
}`

// Entry describes one documented analysis view.
type Entry struct {
	AnalysisType    string `json:"analysis_type"`
	SQLTemplatePath string `json:"sql_template_path"`
	ViewName        string `json:"view_name,omitempty"`
	Description     string `json:"description,omitempty"`
	UDFRequired     bool   `json:"udf_required,omitempty"`
}

// Loader loads and validates the analysis manifest, holding the most
// recently loaded copy for prompt rendering.
type Loader struct {
	path         string
	schemaLoader gojsonschema.JSONLoader
	logger       zerolog.Logger

	mu      sync.RWMutex
	entries []Entry
	raw     string
}

// NewLoader creates a manifest loader for the given file path.
func NewLoader(path string, logger zerolog.Logger) *Loader {
	return &Loader{
		path:         path,
		schemaLoader: gojsonschema.NewStringLoader(manifestSchema),
		logger:       logger.With().Str("component", "manifest").Logger(),
		raw:          "[]",
	}
}

// Load reads and validates the manifest file. A missing file is not an
// error; the loader falls back to an empty manifest so the agent can
// still answer questions that do not depend on documented views.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn().Str("path", l.path).Msg("Manifest file not found, using empty manifest")
			l.set(nil, "[]")
			return nil
		}
		return fmt.Errorf("failed to read manifest file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := l.validateSchema(data); err != nil {
		return fmt.Errorf("manifest schema validation failed: %w", err)
	}

	// Re-indent so the prompt embedding is stable regardless of how
	// the file on disk is formatted.
	pretty, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to render manifest: %w", err)
	}

	l.set(entries, string(pretty))
	l.logger.Info().Int("entries", len(entries)).Str("path", l.path).Msg("Analysis manifest loaded")
	return nil
}

func (l *Loader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(l.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}
	return nil
}

func (l *Loader) set(entries []Entry, raw string) {
	l.mu.Lock()
	l.entries = entries
	l.raw = raw
	l.mu.Unlock()
}

// Entries returns the currently loaded manifest entries.
func (l *Loader) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// JSON returns the manifest as an indented JSON string for prompt
// embedding. An empty or unloaded manifest renders as "[]".
func (l *Loader) JSON() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.raw
}

// EntryFor returns the entry matching the given analysis type.
func (l *Loader) EntryFor(analysisType string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.AnalysisType == analysisType {
			return e, true
		}
	}
	return Entry{}, false
}
