package similarity

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed similarity_log.schema.json
var logSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// LogEntry records the evidence of one Evaluate call.
type LogEntry struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	ContentLength int       `json:"content_length"`
	Timestamp     time.Time `json:"timestamp"`
	Scores        Scores    `json:"scores"`
}

// Logs returns the last limit entries in call order, or all of them when
// limit is not positive.
func (e *Engine) Logs(limit int) []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.logs
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out
}

// WriteLogs encodes the similarity log as an indented JSON array.
func (e *Engine) WriteLogs(w io.Writer) error {
	entries := e.Logs(0)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode similarity logs: %w", err)
	}
	return nil
}

// ExportLogs writes the similarity log to path, replacing any existing file.
func (e *Engine) ExportLogs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log export %s: %w", path, err)
	}

	if err := e.WriteLogs(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log export %s: %w", path, err)
	}

	e.logger.Info().Str("path", path).Msg("similarity logs exported")
	return nil
}

// ReadLogs parses and validates an exported similarity log.
func ReadLogs(r io.Reader) ([]LogEntry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read similarity logs: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode similarity logs: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var entries []LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal similarity logs: %w", err)
	}
	return entries, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("similarity_log.schema.json", strings.NewReader(logSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("similarity_log.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	return compiledSchema, nil
}
