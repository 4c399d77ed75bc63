// Package fetch implements the Fetcher & Installer component (C9): it
// downloads a tool's tarball, verifies its integrity and signature, and
// extracts it into the cache's atomic install slot.
package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/integrity"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

// Request describes one tool+version that must end up installed in the
// cache, and everything needed to verify it once downloaded.
type Request struct {
	Name         toolconfig.ToolName
	PackageName  string // registry package name, e.g. "npm" or "@yarnpkg/cli-dist"
	ExactVersion string
	URL          string

	// ProjectIntegrity, when non-nil, is the project's own pinned digest
	// (the packageManager field's "+algo.hex" suffix). It is authoritative:
	// when present it is the only check performed, and no signature
	// verification is attempted, per §4.8.
	ProjectIntegrity *IntegritySuffix

	// RegistrySRI is the registry's dist.integrity string, used when
	// ProjectIntegrity is nil.
	RegistrySRI string
	Signatures  []integrity.Signature
}

// IntegritySuffix mirrors toolspec.IntegritySuffix to avoid a dependency
// from this package onto the spec parser.
type IntegritySuffix struct {
	Algo string
	Hex  string
}

// Installer ensures tool versions are present in the cache, downloading and
// verifying them on a cache miss.
type Installer struct {
	cache      *cache.Cache
	env        *corepackenv.Env
	httpClient *retryablehttp.Client
}

// NewInstaller builds an Installer backed by c and configured from env.
func NewInstaller(c *cache.Cache, env *corepackenv.Env) *Installer {
	rc := retryablehttp.NewClient()
	rc.RetryMax = env.DownloadRetries()
	rc.HTTPClient.Timeout = env.NetworkTimeout()
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			corepacklog.Verbose("retrying download of %s (attempt %d)", req.URL, attempt)
		}
	}
	return &Installer{cache: c, env: env, httpClient: rc}
}

// Ensure returns the cache Entry for req, downloading and installing it if
// it is not already present. A cache hit never touches the network, even
// when COREPACK_ENABLE_NETWORK is disabled.
func (i *Installer) Ensure(ctx context.Context, req Request) (*cache.Entry, error) {
	if entry, ok := i.cache.Lookup(req.Name, req.ExactVersion); ok {
		return entry, nil
	}

	if !i.env.EnableNetwork() {
		return nil, corepackerr.New(corepackerr.NetworkDisabled, "Network access disabled by the environment")
	}

	if i.env.EnableDownloadPrompt() {
		corepacklog.Notice("Corepack is about to download %s@%s. Set COREPACK_ENABLE_DOWNLOAD_PROMPT=0 to silence this notice.", req.Name, req.ExactVersion)
	}

	tempFile, digest, err := i.download(ctx, req)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	if err := i.verify(req, digest); err != nil {
		return nil, err
	}

	tempDir, err := i.cache.BeginInstall(req.Name)
	if err != nil {
		return nil, err
	}
	if err := extract(tempFile, tempDir); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to extract %s@%s: %w", req.Name, req.ExactVersion, err)
	}

	return i.cache.CommitInstall(tempDir, req.Name, req.ExactVersion)
}

// download streams req.URL into a temporary file while computing its digest
// under whichever algorithm governs verification, returning the temp file's
// path and the finished digest.
func (i *Installer) download(ctx context.Context, req Request) (tempPath string, digest []byte, err error) {
	algo := "sha512"
	switch {
	case req.ProjectIntegrity != nil:
		algo = req.ProjectIntegrity.Algo
	case req.RegistrySRI != "":
		sri, err := integrity.ParseSRI(req.RegistrySRI)
		if err != nil {
			return "", nil, fmt.Errorf("malformed registry integrity value for %s@%s: %w", req.Name, req.ExactVersion, err)
		}
		algo = sri.Algo
	}
	hasher, err := integrity.NewHasher(algo)
	if err != nil {
		return "", nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := i.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download %s@%s: %w", req.Name, req.ExactVersion, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download of %s@%s returned HTTP %d", req.Name, req.ExactVersion, resp.StatusCode)
	}

	out, err := os.CreateTemp("", "corepack-download-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download buffer: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		os.Remove(out.Name())
		return "", nil, fmt.Errorf("download of %s@%s failed: %w", req.Name, req.ExactVersion, err)
	}

	return out.Name(), hasher.Sum(nil), nil
}

func (i *Installer) verify(req Request, digest []byte) error {
	if req.ProjectIntegrity != nil {
		return integrity.VerifyHex(digest, req.ProjectIntegrity.Hex)
	}

	if req.RegistrySRI == "" {
		return nil
	}
	sri, err := integrity.ParseSRI(req.RegistrySRI)
	if err != nil {
		return err
	}
	if err := sri.Verify(digest); err != nil {
		return err
	}

	keys, err := integrity.ResolveKeys(i.env, req.PackageName)
	if err != nil {
		return err
	}
	message := integrity.Message(req.PackageName, req.ExactVersion, req.RegistrySRI)
	return integrity.Verify(keys, message, req.Signatures)
}

// extract unpacks the archive at path into destDir, stripping the single
// common top-level directory tarballs of this shape always carry (e.g.
// npm's "package/"), so destDir ends up holding the tool's own tree
// directly.
func extract(path, destDir string) error {
	if strings.HasSuffix(path, ".zip") || looksLikeZip(path) {
		return extractZip(path, destDir)
	}
	return extractTarGz(path, destDir)
}

func looksLikeZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return magic[0] == 'P' && magic[1] == 'K'
}

func extractTarGz(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		rel := stripTopLevel(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, rel)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func extractZip(path, destDir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		rel := stripTopLevel(f.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, rel)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(out, src); err != nil {
			out.Close()
			src.Close()
			return err
		}
		out.Close()
		src.Close()
	}
	return nil
}

// stripTopLevel removes the first path segment (the archive's single common
// root directory) from name. Entries consisting only of that root directory
// itself are dropped by returning "".
func stripTopLevel(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	i := strings.IndexByte(name, '/')
	if i == -1 {
		return ""
	}
	return name[i+1:]
}
