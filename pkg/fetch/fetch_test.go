package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func newEnv(t *testing.T, extra map[string]string) *corepackenv.Env {
	t.Helper()
	for k, v := range extra {
		os.Setenv(k, v)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
	env, err := corepackenv.Load("")
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestEnsureDownloadsVerifiesAndInstalls(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"bin/yarn.js": "#!/usr/bin/env node\n"})
	sum := sha512.Sum512(archive)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	c := cache.New(dir)
	env := newEnv(t, nil)
	installer := NewInstaller(c, env)

	req := Request{
		Name:             toolconfig.YarnClassic,
		PackageName:      "yarn",
		ExactVersion:     "1.22.22",
		URL:              server.URL + "/yarn-1.22.22.tgz",
		ProjectIntegrity: &IntegritySuffix{Algo: "sha512", Hex: bytesToHex(sum[:])},
	}

	entry, err := installer.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(entry.AbsolutePath + "/bin/yarn.js"); err != nil {
		t.Fatalf("expected extracted file, got error: %v", err)
	}

	if entry2, ok := c.Lookup(toolconfig.YarnClassic, "1.22.22"); !ok || entry2.AbsolutePath != entry.AbsolutePath {
		t.Fatal("expected installed entry to be visible via Lookup")
	}
}

func TestEnsureHashMismatchFails(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"bin/yarn.js": "x"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	c := cache.New(dir)
	env := newEnv(t, nil)
	installer := NewInstaller(c, env)

	req := Request{
		Name:             toolconfig.YarnClassic,
		PackageName:      "yarn",
		ExactVersion:     "1.22.22",
		URL:              server.URL + "/yarn-1.22.22.tgz",
		ProjectIntegrity: &IntegritySuffix{Algo: "sha512", Hex: "00"},
	}

	if _, err := installer.Ensure(context.Background(), req); err == nil {
		t.Fatal("expected hash mismatch error")
	}
	if _, ok := c.Lookup(toolconfig.YarnClassic, "1.22.22"); ok {
		t.Fatal("a failed verification must not leave a cache entry behind")
	}
}

func TestEnsureNetworkDisabledWithoutCacheFails(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(dir)
	env := newEnv(t, map[string]string{"COREPACK_ENABLE_NETWORK": "0"})
	installer := NewInstaller(c, env)

	req := Request{Name: toolconfig.NPM, PackageName: "npm", ExactVersion: "10.9.2", URL: "https://example.invalid/npm.tgz"}
	if _, err := installer.Ensure(context.Background(), req); err == nil {
		t.Fatal("expected network-disabled error")
	}
}

func TestEnsureCacheHitSkipsNetworkEvenWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(dir)
	tmp, err := c.BeginInstall(toolconfig.NPM)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CommitInstall(tmp, toolconfig.NPM, "10.9.2"); err != nil {
		t.Fatal(err)
	}

	env := newEnv(t, map[string]string{"COREPACK_ENABLE_NETWORK": "0"})
	installer := NewInstaller(c, env)

	req := Request{Name: toolconfig.NPM, PackageName: "npm", ExactVersion: "10.9.2", URL: "https://example.invalid/npm.tgz"}
	entry, err := installer.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("expected cache hit to succeed offline, got: %v", err)
	}
	if entry.ExactVersion != "10.9.2" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func bytesToHex(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out)
}
