package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/corepack-go/corepack/pkg/toolconfig"
)

func TestInstallAndLookup(t *testing.T) {
	home := t.TempDir()
	c := New(home)

	tmp, err := c.BeginInstall(toolconfig.NPM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "bin-marker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	entry, err := c.CommitInstall(tmp, toolconfig.NPM, "10.9.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.AbsolutePath != c.Dir(toolconfig.NPM, "10.9.2") {
		t.Fatalf("unexpected install path: %s", entry.AbsolutePath)
	}

	if _, ok := c.Lookup(toolconfig.NPM, "10.9.2"); !ok {
		t.Fatal("expected entry to be found after install")
	}
	if _, ok := c.Lookup(toolconfig.NPM, "9.0.0"); ok {
		t.Fatal("expected no entry for an uninstalled version")
	}
}

func TestConcurrentInstallsAllSucceed(t *testing.T) {
	home := t.TempDir()
	c := New(home)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tmp, err := c.BeginInstall(toolconfig.YarnClassic)
			if err != nil {
				errs[i] = err
				return
			}
			os.WriteFile(filepath.Join(tmp, "yarn.js"), []byte("x"), 0o644)
			_, err = c.CommitInstall(tmp, toolconfig.YarnClassic, "2.2.2")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("installer %d failed: %v", i, err)
		}
	}

	if _, ok := c.Lookup(toolconfig.YarnClassic, "2.2.2"); !ok {
		t.Fatal("expected the entry to exist after concurrent installs")
	}
}

func TestLastKnownGoodMajorGuard(t *testing.T) {
	home := t.TempDir()
	c := New(home)

	c.UpdatePin(toolconfig.NPM, "10.9.2")
	if v, ok := c.LookupPin(toolconfig.NPM); !ok || v != "10.9.2" {
		t.Fatalf("expected pin to be set, got %q, %v", v, ok)
	}

	c.UpdatePin(toolconfig.NPM, "10.9.5")
	if v, _ := c.LookupPin(toolconfig.NPM); v != "10.9.5" {
		t.Fatalf("expected same-major pin to update, got %q", v)
	}

	c.UpdatePin(toolconfig.NPM, "11.0.0")
	if v, _ := c.LookupPin(toolconfig.NPM); v != "10.9.5" {
		t.Fatalf("expected cross-major pin update to be rejected, got %q", v)
	}
}

func TestReadLastKnownGoodMalformed(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, lastKnownGoodFile), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(home)
	pins := c.ReadLastKnownGood()
	if len(pins) != 0 {
		t.Fatalf("expected malformed pin file to degrade to empty map, got %v", pins)
	}
}
