package parsers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "A.CSV", "notes.md", "c.pdf", "skip.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := NewDetector(testLogger()).DiscoverFiles(dir)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := []string{"A.CSV", "b.csv", "c.pdf"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q (case-insensitive name order)", i, names[i], want[i])
		}
	}
}

func TestDiscoverFilesMissingDirectory(t *testing.T) {
	if _, err := NewDetector(testLogger()).DiscoverFiles("/nonexistent/path"); err == nil {
		t.Error("missing directory should error")
	}
}

func TestDiscoverFilesSkipsEscapingSymlinks(t *testing.T) {
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.csv"), []byte("Date,Description,Amount\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "real.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret.csv"), filepath.Join(dir, "link.csv")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := NewDetector(testLogger()).DiscoverFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if filepath.Base(f) == "link.csv" {
			t.Error("symlink escaping the input directory should be skipped")
		}
	}
}

func TestParseDirectory(t *testing.T) {
	dir := t.TempDir()
	statement := "Date,Description,Amount\n2024-03-15,COFFEE,-4.50\n"
	if err := os.WriteFile(filepath.Join(dir, "checking.csv"), []byte(statement), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unparseable file is collected as an error, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "garbage.csv"), []byte("no header\nat all"), 0o644); err != nil {
		t.Fatal(err)
	}

	byFile, parseErrors, err := NewDetector(testLogger()).ParseDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(byFile["checking.csv"]) != 1 {
		t.Errorf("checking.csv transactions = %d, want 1", len(byFile["checking.csv"]))
	}
	if len(parseErrors) != 1 {
		t.Errorf("parse errors = %v, want 1 for the garbage file", parseErrors)
	}
}

func TestDetectParser(t *testing.T) {
	d := NewDetector(testLogger())

	csvPath := writeFixture(t, "ok.csv", "Date,Description,Amount\n2024-03-15,X,-1.00")
	parser := d.DetectParser(csvPath)
	if parser == nil || parser.Name() != "csv" {
		t.Errorf("parser = %v, want csv", parser)
	}

	if d.DetectParser(writeFixture(t, "bad.csv", "just text")) != nil {
		t.Error("no parser should accept an unstructured file")
	}
}
