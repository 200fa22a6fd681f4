package overrides

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	table, err := Open(filepath.Join(t.TempDir(), "missing.yaml"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d", table.Len())
	}
	if _, ok := table.Lookup("almuerzo"); ok {
		t.Fatal("expected no override")
	}
}

func TestLearnPersistsAndFolds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "overrides.yaml")
	table, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := table.Learn("Peluquería", "Cuidado personal"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if category, ok := table.Lookup("peluqueria"); !ok || category != "Cuidado personal" {
		t.Fatalf("expected folded lookup, got %q (%v)", category, ok)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	if !strings.Contains(string(raw), "peluqueria: Cuidado personal") {
		t.Fatalf("unexpected file contents: %s", raw)
	}

	reopened, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if category, ok := reopened.Lookup("PELUQUERIA"); !ok || category != "Cuidado personal" {
		t.Fatalf("expected persisted override, got %q (%v)", category, ok)
	}
}

func TestLearnRejectsEmptyValues(t *testing.T) {
	table, err := Open(filepath.Join(t.TempDir(), "overrides.yaml"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := table.Learn("  ", "Salud"); err == nil {
		t.Fatal("expected empty description to fail")
	}
	if err := table.Learn("gym", " "); err == nil {
		t.Fatal("expected empty category to fail")
	}
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	table, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.WriteFile(path, []byte("Cafe: Alimentación\n\"\": Salud\nvacio: \"\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := table.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected blank entries to be skipped, got %d", table.Len())
	}
	if category, ok := table.Lookup("café"); !ok || category != "Alimentación" {
		t.Fatalf("expected reloaded override, got %q (%v)", category, ok)
	}
}

func TestReloadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a map\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, testLogger()); err == nil {
		t.Fatal("expected malformed file to fail")
	}
}
