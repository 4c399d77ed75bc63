package project

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocateClosestManifestWins(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"packageManager":"yarn@1.22.4"}`)

	sub := filepath.Join(root, "foo")
	writeManifest(t, sub, `{"packageManager":"npm@6.14.2"}`)

	m, err := Locate(sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected a manifest to be found")
	}
	if m.PackageManager != "npm@6.14.2" {
		t.Fatalf("expected the closest manifest to win, got %q", m.PackageManager)
	}
}

func TestLocateSkipsEmptyManifests(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"packageManager":"yarn@1.22.4"}`)

	sub := filepath.Join(root, "foo")
	writeManifest(t, sub, `{"name":"foo"}`)

	m, err := Locate(sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.PackageManager != "yarn@1.22.4" {
		t.Fatalf("expected empty manifest to be transparent, got %+v", m)
	}
}

func TestLocateNeverUsesNodeModulesManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"packageManager":"npm@8.0.0"}`)

	vendored := filepath.Join(root, "node_modules", "some-dep")
	writeManifest(t, vendored, `{"packageManager":"yarn@1.0.0"}`)

	m, err := Locate(vendored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.PackageManager != "npm@8.0.0" {
		t.Fatalf("expected vendored manifest to be opaque, got %+v", m)
	}
}

func TestLocateReturnsNilWhenNothingFound(t *testing.T) {
	root := t.TempDir()
	m, err := Locate(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected no manifest, got %+v", m)
	}
}
