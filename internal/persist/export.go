package persist

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/thainguyen06/pmc/internal/record"
)

// exportEntry is the human-readable export shape (spec §4.F "export/import,
// human-readable, for sharing a table between machines"). Unlike dumpEntry
// it is meant to be hand-edited, so field names are spelled out rather than
// abbreviated.
type exportEntry struct {
	Name       string            `yaml:"name"`
	Script     string            `yaml:"script"`
	Path       string            `yaml:"path,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Watch      *record.Watch     `yaml:"watch,omitempty"`
	MaxMemory  string            `yaml:"max_memory,omitempty"`
	CrashLimit int               `yaml:"crash_limit,omitempty"`
	Workers    string            `yaml:"workers,omitempty"`
}

// Export writes records to path as YAML, resolved against id (not name) so
// the id column never appears — reimporting always mints fresh ids.
func Export(path string, records []*record.Record) error {
	entries := make([]exportEntry, len(records))
	for i, rec := range records {
		// max_memory is written as a plain byte count so Import reads back
		// the exact value; suffixed sizes such as "512M" are still accepted
		// when the file is edited by hand.
		maxMem := ""
		if rec.MaxMemory > 0 {
			maxMem = strconv.FormatUint(rec.MaxMemory, 10)
		}
		entries[i] = exportEntry{
			Name:       rec.Name,
			Script:     rec.Script,
			Path:       rec.Path,
			Env:        rec.Env,
			Watch:      rec.Watch,
			MaxMemory:  maxMem,
			CrashLimit: rec.CrashLimit,
			Workers:    rec.Workers,
		}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Import reads a YAML export and returns records ready for Table.Insert
// (ids unassigned; the table mints them). A name collision with an existing
// table is left for the caller to detect via Table.Insert's ErrNameTaken.
func Import(path string) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var entries []exportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	out := make([]*record.Record, len(entries))
	for i, e := range entries {
		maxMem, err := record.ParseMaxMemory(e.MaxMemory)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Name, err)
		}
		out[i] = &record.Record{
			Name:       e.Name,
			Script:     e.Script,
			Path:       e.Path,
			Env:        e.Env,
			Watch:      e.Watch,
			MaxMemory:  maxMem,
			Status:     record.StatusStopped,
			CrashLimit: e.CrashLimit,
			Workers:    e.Workers,
		}
	}
	return out, nil
}
