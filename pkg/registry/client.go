// Package registry implements the Registry Client component (C7): fetching
// package metadata from a standard package registry and selecting the
// version that satisfies a range or tag.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/corepacklog"
)

// Client fetches package metadata from a configured registry, with auth and
// retry policy driven by the resolved environment.
type Client struct {
	env        *corepackenv.Env
	httpClient *retryablehttp.Client
}

// NewClient builds a Client from the resolved environment flags.
func NewClient(env *corepackenv.Env) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = env.DownloadRetries()
	rc.HTTPClient.Timeout = env.NetworkTimeout()
	rc.Logger = nil // the shim does its own leveled logging, see below
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			corepacklog.Verbose("retrying registry request to %s (attempt %d)", req.URL, attempt)
		}
	}

	return &Client{env: env, httpClient: rc}
}

// FetchDocument retrieves and decodes the metadata document for
// packageName. It fails fast with a NetworkDisabled error when
// COREPACK_ENABLE_NETWORK is 0, without attempting any request.
func (c *Client) FetchDocument(ctx context.Context, packageName string) (*Document, error) {
	if !c.env.EnableNetwork() {
		return nil, corepackerr.New(corepackerr.NetworkDisabled, "Network access disabled by the environment")
	}

	reqURL := c.env.NpmRegistry() + "/" + url.PathEscape(packageName)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	c.applyAuth(req.Request)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "corepack-go/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, corepackerr.Wrap(corepackerr.NetworkDisabled, "", "", fmt.Errorf("registry request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned HTTP %d for %s", resp.StatusCode, packageName)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry document for %s: %w", packageName, err)
	}
	return &doc, nil
}

func (c *Client) applyAuth(req *http.Request) {
	if token, ok := c.env.NpmToken(); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	user, hasUser := c.env.NpmUser()
	pass, hasPass := c.env.NpmPassword()
	if hasUser && hasPass {
		req.SetBasicAuth(user, pass)
	}
}

// IsScopedPackage reports whether packageName is scoped (e.g.
// "@yarnpkg/cli-dist"), which affects tarball URL templating for the
// yarn-berry path.
func IsScopedPackage(packageName string) bool {
	return strings.HasPrefix(packageName, "@")
}
