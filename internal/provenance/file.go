package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/geosafe/internal/ir"
)

// Save writes the log as an indented JSON document, creating parent
// directories as needed.
func Save(path string, l *Log) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("save provenance: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save provenance: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save provenance: %w", err)
	}
	return nil
}

// Load reads a log written by Save.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load provenance: %w", err)
	}
	return Decode(data)
}

// Decode parses a JSON provenance document.
func Decode(data []byte) (*Log, error) {
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}
	if l.SchemaVersion != ir.SchemaVersion {
		return nil, fmt.Errorf("decode provenance: unsupported schema version %q", l.SchemaVersion)
	}
	return &l, nil
}
