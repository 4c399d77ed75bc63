// Package corepackenv merges the process environment with an optional
// dotenv file and exposes the resolved flags the rest of the shim consults.
package corepackenv

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/corepack-go/corepack/pkg/corepacklog"
)

// downloadPromptKey is handled specially: it may only be set via the real
// process environment, never via a dotenv file (see spec Open Questions).
const downloadPromptKey = "COREPACK_ENABLE_DOWNLOAD_PROMPT"

// Env is the resolved set of environment flags for one invocation.
type Env struct {
	vars map[string]string
}

// Load merges the process environment with an optional dotenv file found
// relative to projectRoot, and returns the resolved Env. projectRoot may be
// empty when no project was located; in that case no dotenv file is loaded.
func Load(projectRoot string) (*Env, error) {
	vars := map[string]string{}
	for _, kv := range os.Environ() {
		if key, value, ok := splitKV(kv); ok {
			vars[key] = value
		}
	}

	fileName, load := dotenvFileName(vars)
	if load && projectRoot != "" {
		path := filepath.Join(projectRoot, fileName)
		if _, err := os.Stat(path); err == nil {
			fileVars, err := parseDotenv(path)
			if err != nil {
				corepacklog.Verbose("failed to parse dotenv file %s: %v", path, err)
			} else {
				for k, v := range fileVars {
					if k == downloadPromptKey {
						// Process-env-only flag: dotenv can never set it.
						continue
					}
					if _, already := vars[k]; !already {
						vars[k] = v
					}
				}
			}
		}
	}

	return &Env{vars: vars}, nil
}

// dotenvFileName decides which dotenv file (if any) should be loaded, per
// COREPACK_ENV_FILE.
func dotenvFileName(vars map[string]string) (name string, load bool) {
	override, set := vars["COREPACK_ENV_FILE"]
	if !set {
		return ".corepack.env", true
	}
	if override == "0" {
		return "", false
	}
	return override, true
}

func splitKV(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func (e *Env) get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

func (e *Env) boolFlag(key string, def bool) bool {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n != 0
}

// Home returns COREPACK_HOME, or a platform default derived from the user's
// home directory when unset.
func (e *Env) Home() (string, error) {
	if v, ok := e.get("COREPACK_HOME"); ok && v != "" {
		return v, nil
	}
	home, err := userHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".corepack"), nil
}

func userHome() (string, error) {
	if runtime.GOOS == "windows" {
		if h := os.Getenv("USERPROFILE"); h != "" {
			return h, nil
		}
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH"), nil
	}
	return os.UserHomeDir()
}

// DefaultToLatest is COREPACK_DEFAULT_TO_LATEST, default false.
func (e *Env) DefaultToLatest() bool { return e.boolFlag("COREPACK_DEFAULT_TO_LATEST", false) }

// EnableNetwork is COREPACK_ENABLE_NETWORK, default true.
func (e *Env) EnableNetwork() bool { return e.boolFlag("COREPACK_ENABLE_NETWORK", true) }

// EnableProjectSpec is COREPACK_ENABLE_PROJECT_SPEC, default true.
func (e *Env) EnableProjectSpec() bool { return e.boolFlag("COREPACK_ENABLE_PROJECT_SPEC", true) }

// EnableAutoPin is COREPACK_ENABLE_AUTO_PIN, default false. When set, a
// successful dispatch in a project with no existing pin writes the resolved
// name@version back into the manifest's packageManager field, the same way
// "corepack use" would.
func (e *Env) EnableAutoPin() bool { return e.boolFlag("COREPACK_ENABLE_AUTO_PIN", false) }

// EnableStrict is COREPACK_ENABLE_STRICT, default true.
func (e *Env) EnableStrict() bool { return e.boolFlag("COREPACK_ENABLE_STRICT", true) }

// EnableDownloadPrompt is COREPACK_ENABLE_DOWNLOAD_PROMPT, default false.
// Only ever honored if set in the real process environment.
func (e *Env) EnableDownloadPrompt() bool { return e.boolFlag(downloadPromptKey, false) }

// EnableUnsafeCustomURLs is COREPACK_ENABLE_UNSAFE_CUSTOM_URLS, default false.
func (e *Env) EnableUnsafeCustomURLs() bool {
	return e.boolFlag("COREPACK_ENABLE_UNSAFE_CUSTOM_URLS", false)
}

// NpmRegistry is COREPACK_NPM_REGISTRY, default the public npm registry.
func (e *Env) NpmRegistry() string {
	if v, ok := e.get("COREPACK_NPM_REGISTRY"); ok && v != "" {
		return v
	}
	return "https://registry.npmjs.org"
}

// NpmToken is COREPACK_NPM_TOKEN.
func (e *Env) NpmToken() (string, bool) { return e.get("COREPACK_NPM_TOKEN") }

// NpmUser is COREPACK_NPM_USER.
func (e *Env) NpmUser() (string, bool) { return e.get("COREPACK_NPM_USER") }

// NpmPassword is COREPACK_NPM_PASSWORD.
func (e *Env) NpmPassword() (string, bool) { return e.get("COREPACK_NPM_PASSWORD") }

// IntegrityKeys is the raw COREPACK_INTEGRITY_KEYS value, and whether it was
// set at all (unset means "use built-in keys", as distinct from "" which
// means "skip signature checking").
func (e *Env) IntegrityKeys() (string, bool) { return e.get("COREPACK_INTEGRITY_KEYS") }

// NetworkTimeout is COREPACK_NETWORK_TIMEOUT, default 30s.
func (e *Env) NetworkTimeout() time.Duration {
	if v, ok := e.get("COREPACK_NETWORK_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// DownloadRetries is COREPACK_DOWNLOAD_RETRIES, default 3.
func (e *Env) DownloadRetries() int {
	if v, ok := e.get("COREPACK_DOWNLOAD_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 3
}

// Verbose is COREPACK_VERBOSE, default false.
func (e *Env) Verbose() bool { return e.boolFlag("COREPACK_VERBOSE", false) }

// Quiet is COREPACK_QUIET, default false.
func (e *Env) Quiet() bool { return e.boolFlag("COREPACK_QUIET", false) }
