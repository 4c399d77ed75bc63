package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/dispatch"
	"github.com/corepack-go/corepack/pkg/fetch"
	"github.com/corepack-go/corepack/pkg/integrity"
	"github.com/corepack-go/corepack/pkg/project"
	"github.com/corepack-go/corepack/pkg/registry"
	"github.com/corepack-go/corepack/pkg/resolve"
	"github.com/corepack-go/corepack/pkg/toolconfig"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

// components bundles the wired collaborators one invocation needs. It is
// built fresh per command so that a bare "corepack --help" never touches
// the cache or the network ahead of time.
type components struct {
	env        *corepackenv.Env
	store      *toolconfig.Store
	cache      *cache.Cache
	resolver   *resolve.Resolver
	installer  *fetch.Installer
	dispatcher *dispatch.Dispatcher
	manifest   *toolspec.Manifest
}

// build locates the controlling project manifest from the working
// directory, loads the environment relative to it, and wires every
// collaborator component.
func build() (*components, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	manifest, err := project.Locate(cwd)
	if err != nil {
		return nil, err
	}

	projectRoot := ""
	if manifest != nil {
		projectRoot = filepath.Dir(manifest.Path)
	}

	env, err := corepackenv.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	home, err := env.Home()
	if err != nil {
		return nil, fmt.Errorf("failed to determine corepack home: %w", err)
	}

	store, err := toolconfig.LoadStore(home)
	if err != nil {
		return nil, err
	}

	c := cache.New(home)
	reg := registry.NewClient(env)

	return &components{
		env:        env,
		store:      store,
		cache:      c,
		resolver:   resolve.New(env, store, c, reg),
		installer:  fetch.NewInstaller(c, env),
		dispatcher: dispatch.New(),
		manifest:   manifest,
	}, nil
}

// ensureInstalled materializes res in the cache, translating its integrity
// metadata into the shape the Fetcher & Installer expects.
func (c *components) ensureInstalled(ctx context.Context, res *resolve.Resolution) (*cache.Entry, error) {
	sigs := make([]integrity.Signature, len(res.Signatures))
	for i, s := range res.Signatures {
		sigs[i] = integrity.Signature{KeyID: s.KeyID, Sig: s.Sig}
	}

	req := fetch.Request{
		Name:         res.Name,
		PackageName:  res.PackageName,
		ExactVersion: res.ExactVersion,
		URL:          res.Source,
		RegistrySRI:  res.RegistrySRI,
		Signatures:   sigs,
	}
	if res.Integrity != nil {
		req.ProjectIntegrity = &fetch.IntegritySuffix{Algo: res.Integrity.Algo, Hex: res.Integrity.Hex}
	}
	return c.installer.Ensure(ctx, req)
}
