package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestUpdateMergesNestedDottedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `{"lora": {"spreading_factor": 7}, "other": "keep"}`)

	if err := Update(path, map[string]any{
		"lora.spreading_factor": 11,
		"lora.tx_power":         20,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetNested(doc, "lora.spreading_factor", nil); got != float64(11) {
		t.Fatalf("lora.spreading_factor = %v; want 11", got)
	}
	if got := GetNested(doc, "lora.tx_power", nil); got != float64(20) {
		t.Fatalf("lora.tx_power = %v; want 20", got)
	}
	if got := GetNested(doc, "other", nil); got != "keep" {
		t.Fatalf("other = %v; want kept unchanged", got)
	}
}

func TestUpdateCreatesIntermediateObjects(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `{}`)

	if err := Update(path, map[string]any{"command_server.max_queue_size": 64}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ := Load(path)
	if got := GetNested(doc, "command_server.max_queue_size", nil); got != float64(64) {
		t.Fatalf("command_server.max_queue_size = %v; want 64", got)
	}
}

func TestUpdateMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	if err := Update(filepath.Join(dir, "nope.json"), map[string]any{"a": 1}); err == nil {
		t.Fatalf("expected an error updating a nonexistent file")
	}
}

func TestUpdateLeavesOriginalIntactOnNoTempFilePermission(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `{"a": 1}`)

	roDir := filepath.Join(dir, "ro")
	if err := os.Mkdir(roDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	roPath := filepath.Join(roDir, "config.json")
	if err := os.WriteFile(roPath, []byte(`{"a": 1}`), 0o644); err == nil {
		// Writable enough to create the file before locking the dir down;
		// re-chmod after to force the temp-file create in Update to fail.
	}
	_ = path // original, untouched comparison file

	if err := os.Chmod(roDir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(roDir, 0o755)

	err := Update(roPath, map[string]any{"a": 2})
	if err == nil {
		t.Fatalf("expected an error creating a temp file in a read-only directory")
	}
	doc, loadErr := Load(roPath)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if got := GetNested(doc, "a", nil); got != float64(1) {
		t.Fatalf("original file was modified despite a failed update: a=%v", got)
	}
}

func TestGetNestedReturnsDefaultForMissingPath(t *testing.T) {
	doc := map[string]any{"lora": map[string]any{"sf": float64(9)}}
	if got := GetNested(doc, "lora.bw", "missing"); got != "missing" {
		t.Fatalf("GetNested = %v; want default", got)
	}
	if got := GetNested(doc, "nope.at.all", "missing"); got != "missing" {
		t.Fatalf("GetNested = %v; want default", got)
	}
}
