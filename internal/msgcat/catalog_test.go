package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("outcome.checkmate", map[string]any{"Winner": "black"})
	if err != nil || got != "Checkmate, black wins" {
		t.Fatalf("Render = %q, %v", got, err)
	}
	if _, err := c.Render("outcome.checkmate", map[string]any{}); err == nil {
		t.Fatalf("missing data key should fail")
	}
	if _, err := c.Render("nope", nil); err == nil {
		t.Fatalf("unknown key should fail")
	}
	if got := c.RenderOr("nope", nil, "fallback"); got != "fallback" {
		t.Fatalf("RenderOr = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.yaml", "outcome:\n  aborted: \"Partie abandonnee\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Render("outcome.aborted", nil); got != "Partie abandonnee" {
		t.Fatalf("override not applied: %q", got)
	}
	if got, _ := c.Render("outcome.stalemate", map[string]any{"Loser": "white"}); !strings.Contains(got, "white") {
		t.Fatalf("defaults lost: %q", got)
	}

	write("b.yml", "outcome:\n  aborted: \"again\"\n")
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatalf("expected error for numeric leaf")
	}
}
