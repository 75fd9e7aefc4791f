// Package config persists runtime configuration changes to a JSON file
// on disk, atomically, and supports dotted-path nested access
// ("lora.spreading_factor") for both reads and updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patio-mesh/telemetry-core/internal/telemetry"
)

// Update persists updates into the JSON config file at path, atomically:
// read the existing file, merge in the dotted-path updates, write to a
// temp file in the same directory, fsync it, then rename over the
// original. Returns an error if path does not exist or the write fails;
// a failed write never leaves the original file corrupted.
func Update(path string, updates map[string]any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	for keyPath, value := range updates {
		setNested(doc, keyPath, value)
	}

	encoded, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	encoded = append(encoded, '\n')

	if err := writeAtomic(path, encoded); err != nil {
		return err
	}
	telemetry.L().Infof("config: persisted %d key(s) to %s", len(updates), path)
	return nil
}

// writeAtomic writes data to a temp file beside path, fsyncs it, then
// renames it over path. The rename is atomic on POSIX filesystems, so a
// crash mid-write never leaves a half-written config in place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// setNested writes value into d at the dotted key path, creating
// intermediate maps as needed.
func setNested(d map[string]any, keyPath string, value any) {
	keys := strings.Split(keyPath, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := d[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			d[key] = next
		}
		d = next
	}
	d[keys[len(keys)-1]] = value
}

// GetNested reads the value at the dotted key path, returning def if any
// segment is missing or not an object.
func GetNested(d map[string]any, keyPath string, def any) any {
	keys := strings.Split(keyPath, ".")
	var cur any = d
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		v, ok := m[key]
		if !ok {
			return def
		}
		cur = v
	}
	return cur
}

// Load reads and parses a JSON config file into a generic nested map, for
// use with GetNested.
func Load(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}
