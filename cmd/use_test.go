package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetPackageManagerFieldInsertsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	if err := os.WriteFile(path, []byte(`{
  "name": "demo"
}
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := setPackageManagerField(path, "pnpm@9.15.4+sha256.ab"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.Contains(content, `"packageManager": "pnpm@9.15.4+sha256.ab"`) {
		t.Fatalf("expected inserted field, got:\n%s", content)
	}
	if !strings.Contains(content, `"name": "demo"`) {
		t.Fatalf("expected existing field preserved, got:\n%s", content)
	}
}

func TestSetPackageManagerFieldReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	if err := os.WriteFile(path, []byte(`{
  "name": "demo",
  "packageManager": "npm@9.0.0"
}
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := setPackageManagerField(path, "npm@10.9.2+sha256.cd"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.Contains(content, `"packageManager": "npm@10.9.2+sha256.cd"`) {
		t.Fatalf("expected replaced field, got:\n%s", content)
	}
	if strings.Contains(content, "9.0.0") {
		t.Fatalf("expected old version to be gone, got:\n%s", content)
	}
}

