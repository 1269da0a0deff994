package runstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "plan.json")

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := WriteJSON(path, doc{Name: "run", Count: 3}); err != nil {
		t.Fatalf("write json: %v", err)
	}

	var got doc
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if got.Name != "run" || got.Count != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// no temp droppings left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestEnsureWritableDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "logs")
	if err := EnsureWritableDir(target); err != nil {
		t.Fatalf("ensure writable: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s: %v", target, err)
	}
}
