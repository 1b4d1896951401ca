package prompt

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPersona_Markdown(t *testing.T) {
	path := writeFile(t, "persona.md", "\n  Answer like a patient tutor.  \n")

	got, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Answer like a patient tutor." {
		t.Errorf("got %q", got)
	}
}

func TestLoadPersona_YAML(t *testing.T) {
	path := writeFile(t, "persona.yaml", `name: Ada
style: precise
expertise: [rust, compilers]
guidelines:
  - cite sources
  - keep it short
`)

	got, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "You are Ada.\nStyle: precise\nExpertise: rust, compilers\nGuidelines:\n- cite sources\n- keep it short"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadPersona_Empty(t *testing.T) {
	got, err := LoadPersona("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty persona, got %q", got)
	}
}

func TestLoadPersona_Errors(t *testing.T) {
	if _, err := LoadPersona(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeFile(t, "bad.yml", "name: [unclosed")
	if _, err := LoadPersona(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
