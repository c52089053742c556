package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileParsesKeyValuePairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "farmd.conf")
	content := "# comment\nblender=/usr/bin/blender\nchunk_size=25\n\nverbose=true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if values["blender"] != "/usr/bin/blender" {
		t.Fatalf("got %q", values["blender"])
	}
	if IntValue(values, "chunk_size", -1) != 25 {
		t.Fatalf("got %v", values["chunk_size"])
	}
	if !BoolValue(values, "verbose", false) {
		t.Fatal("expected verbose=true")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIntValueFallbackOnUnparseable(t *testing.T) {
	values := map[string]string{"chunk_size": "not-a-number"}
	if got := IntValue(values, "chunk_size", 50); got != 50 {
		t.Fatalf("got %d, want fallback 50", got)
	}
}
