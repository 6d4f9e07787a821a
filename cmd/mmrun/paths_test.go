package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeCards(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("name: x\nmax_context_len: 8\n"), 0o644); err != nil {
			t.Fatalf("write card %s: %v", name, err)
		}
	}
}

func withTTY(t *testing.T, tty bool) {
	t.Helper()
	prev := stdinIsTTY
	stdinIsTTY = func() bool { return tty }
	t.Cleanup(func() { stdinIsTTY = prev })
}

func TestResolveCardPath(t *testing.T) {
	t.Run("model flag bypasses env", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		got, err := resolveCardPath("/tmp/cards/../tiny.yaml", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveCardPath returned error: %v", err)
		}
		if got != filepath.Clean("/tmp/tiny.yaml") {
			t.Fatalf("unexpected card path: got %q", got)
		}
	})

	t.Run("missing models dir", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		if _, err := resolveCardPath("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error without --model or models dir")
		}
	})

	t.Run("single card selects automatically", func(t *testing.T) {
		dir := t.TempDir()
		writeCards(t, dir, "only.yaml", "notes.txt")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		got, err := resolveCardPath("", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveCardPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "only.yaml"); got != want {
			t.Fatalf("unexpected card path: got %q want %q", got, want)
		}
	})

	t.Run("flag wins over env", func(t *testing.T) {
		envDir := t.TempDir()
		flagDir := t.TempDir()
		writeCards(t, envDir, "env.yaml")
		writeCards(t, flagDir, "flag.yml")
		t.Setenv(envModelsDir, envDir)
		withTTY(t, false)

		got, err := resolveCardPath("", flagDir, bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveCardPath returned error: %v", err)
		}
		if want := filepath.Join(flagDir, "flag.yml"); got != want {
			t.Fatalf("unexpected card path: got %q want %q", got, want)
		}
	})

	t.Run("multiple cards requires tty", func(t *testing.T) {
		dir := t.TempDir()
		writeCards(t, dir, "a.yaml", "b.yaml")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		if _, err := resolveCardPath("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error when multiple cards and stdin is not a tty")
		}
	})

	t.Run("interactive selection chooses sorted index", func(t *testing.T) {
		dir := t.TempDir()
		writeCards(t, dir, "b.yaml", "a.yaml")
		t.Setenv(envModelsDir, dir)
		withTTY(t, true)

		got, err := resolveCardPath("", "", bytes.NewBufferString("0\n2\n"), io.Discard)
		if err != nil {
			t.Fatalf("resolveCardPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "b.yaml"); got != want {
			t.Fatalf("unexpected card selection: got %q want %q", got, want)
		}
	})

	t.Run("invalid selection at eof", func(t *testing.T) {
		dir := t.TempDir()
		writeCards(t, dir, "a.yaml", "b.yaml")
		t.Setenv(envModelsDir, dir)
		withTTY(t, true)

		if _, err := resolveCardPath("", "", bytes.NewBufferString("9"), io.Discard); err == nil {
			t.Fatalf("expected error for out of range selection at eof")
		}
	})
}
