package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/registry"
	"github.com/corepack-go/corepack/pkg/toolconfig"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

func setup(t *testing.T, extraEnv map[string]string) (*Resolver, *cache.Cache) {
	t.Helper()
	for k, v := range extraEnv {
		os.Setenv(k, v)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
	env, err := corepackenv.Load("")
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New(t.TempDir())
	store := toolconfig.NewStore()
	reg := registry.NewClient(env)
	return New(env, store, c, reg), c
}

func TestResolveInlineExactWithIntegritySkipsRegistry(t *testing.T) {
	r, _ := setup(t, nil)
	expr, err := toolspec.ParseVersionExpression("1.22.22+sha512.ab12", true, true)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(context.Background(), Input{InlineName: "yarn-classic", InlineVersion: &expr})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactVersion != "1.22.22" || res.Integrity == nil || res.Integrity.Hex != "ab12" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveManifestPackageManagerField(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{PackageManager: "pnpm@9.15.4+sha256.deadbeef", Path: "/p/package.json"}
	res, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "pnpm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Name != toolconfig.PNPM || res.ExactVersion != "9.15.4" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveNameMismatchIsFatal(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{PackageManager: "pnpm@9.15.4+sha256.deadbeef", Path: "/p/package.json"}
	_, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "npm", Subcommand: "install"})
	if !corepackerr.Is(err, corepackerr.NameMismatch) {
		t.Fatalf("expected NameMismatch, got %v", err)
	}
}

func TestResolveNameMismatchTransparentCommandBypasses(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{PackageManager: "npm@10.9.2+sha256.deadbeef", Path: "/p/package.json"}
	res, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "pnpm", Subcommand: "self-update"})
	if err != nil {
		t.Fatalf("expected transparent command to bypass mismatch, got: %v", err)
	}
	if res.Name != toolconfig.NPM {
		t.Fatalf("expected resolution to still reflect project's pinned tool, got %+v", res)
	}
}

func TestResolveFallsThroughToLastKnownGood(t *testing.T) {
	r, c := setup(t, nil)
	c.UpdatePin(toolconfig.NPM, "10.2.0")
	res, err := r.Resolve(context.Background(), Input{InvokedCommand: "npm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactVersion != "10.2.0" {
		t.Fatalf("expected pinned version, got %s", res.ExactVersion)
	}
}

func TestResolveFallsThroughToBuiltinDefault(t *testing.T) {
	r, _ := setup(t, nil)
	res, err := r.Resolve(context.Background(), Input{InvokedCommand: "npm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactVersion == "" {
		t.Fatal("expected a default version to be resolved")
	}
}

func TestResolveURLForKnownToolRequiresUnsafeFlag(t *testing.T) {
	r, _ := setup(t, nil)
	expr, err := toolspec.ParseVersionExpression("https://example.invalid/npm.tgz", true, true)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(context.Background(), Input{InlineName: "npm", InlineVersion: &expr})
	if !corepackerr.Is(err, corepackerr.URLForKnownTool) {
		t.Fatalf("expected URLForKnownTool, got %v", err)
	}

	r2, _ := setup(t, map[string]string{"COREPACK_ENABLE_UNSAFE_CUSTOM_URLS": "1"})
	res, err := r2.Resolve(context.Background(), Input{InlineName: "npm", InlineVersion: &expr})
	if err != nil {
		t.Fatalf("unexpected error with unsafe URLs enabled: %v", err)
	}
	if res.Source != "https://example.invalid/npm.tgz" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveRangeConsultsRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"pnpm","dist-tags":{"latest":"9.15.4"},"versions":{
			"9.15.4":{"version":"9.15.4","dist":{"tarball":"https://example/pnpm-9.15.4.tgz","integrity":"sha512-abcd"}}
		}}`))
	}))
	defer server.Close()

	r, _ := setup(t, map[string]string{"COREPACK_NPM_REGISTRY": server.URL})
	expr, err := toolspec.ParseVersionExpression("^9.0.0", true, true)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(context.Background(), Input{InlineName: "pnpm", InlineVersion: &expr})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactVersion != "9.15.4" || res.RegistrySRI != "sha512-abcd" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveDevEnginesShapeMismatchWarnsAndIgnores(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{
		PackageManager: "npm@10.9.2+sha256.deadbeef",
		DevEngines:     []interface{}{"npm"},
		Path:           "/p/package.json",
	}
	res, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "npm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExactVersion != "10.9.2" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveDevEnginesMismatchErrorsByDefault(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{
		PackageManager: "npm@10.9.2+sha256.deadbeef",
		DevEngines:     map[string]interface{}{"name": "pnpm"},
		Path:           "/p/package.json",
	}
	_, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "npm"})
	if !corepackerr.Is(err, corepackerr.DevEnginesMismatch) {
		t.Fatalf("expected DevEnginesMismatch, got %v", err)
	}
}

func TestResolveDevEnginesMismatchWarnOnFail(t *testing.T) {
	r, _ := setup(t, nil)
	manifest := &toolspec.Manifest{
		PackageManager: "npm@10.9.2+sha256.deadbeef",
		DevEngines:     map[string]interface{}{"name": "pnpm", "onFail": "warn"},
		Path:           "/p/package.json",
	}
	res, err := r.Resolve(context.Background(), Input{Manifest: manifest, InvokedCommand: "npm"})
	if err != nil {
		t.Fatalf("expected onFail warn to continue, got: %v", err)
	}
	if res.Name != toolconfig.NPM {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}
