package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_BuiltinTable(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, "", "", "yaml"); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"== clean table", "Price", "Membership", "1200", "1200000", "true", "version: 1", "currency", "boolean", "mode: build"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_ReplayFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	recipePath := filepath.Join(dir, "recipe.json")

	if err := os.WriteFile(csvPath, []byte("Price,Other\n$5,x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	recipeJSON := `{"version":1,"steps":[{"column":"Price","kind":"currency","fallback":"unresolved"}]}`
	if err := os.WriteFile(recipePath, []byte(recipeJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(&out, csvPath, recipePath, "json"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "mode: replay") {
		t.Errorf("expected a replay report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "not_in_recipe") {
		t.Errorf("Other should pass through:\n%s", out.String())
	}
}

func TestRun_BadFormat(t *testing.T) {
	if err := run(&bytes.Buffer{}, "", "", "toml"); err == nil {
		t.Error("run() with an unknown recipe format should fail")
	}
}
