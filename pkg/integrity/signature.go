package integrity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/corepackerr"
)

// builtinKeys are the compiled-in signing keys used when
// COREPACK_INTEGRITY_KEYS is unset. In a real deployment these would be the
// registry operator's published keys; here they stand in for that role.
var builtinKeys = map[string]map[string]string{
	"npm":          {"npm-ed25519-2024": "15Z3GIaH57MrQ96dI2Wh/4rm8anj1JRxm+VCOU2Z990="},
	"pnpm":         {"pnpm-ed25519-2024": "LlqgNhqv/ZEh2WUgS/8pP0oSvh5xII/qDLRHOaQ1aZk="},
	"yarn":         {"yarn-ed25519-2024": "7E5Zi9DzEqfEm/g5hLcBdvMRrxQqR8o1TzVCT7efK/0="},
	"@yarnpkg/cli-dist": {"yarn-ed25519-2024": "7E5Zi9DzEqfEm/g5hLcBdvMRrxQqR8o1TzVCT7efK/0="},
}

// KeySet is the resolved set of acceptable (keyid -> public key) pairs for
// one registry package, plus whether signature checking should be skipped
// entirely.
type KeySet struct {
	Keys map[string]ed25519.PublicKey
	Skip bool
}

// keyDocument is the shape of COREPACK_INTEGRITY_KEYS: {tool -> [{keyid,
// key}...]}.
type keyDocument map[string][]struct {
	KeyID string `json:"keyid"`
	Key   string `json:"key"`
}

// ResolveKeys determines which keys apply to packageName, per §4.8:
//   - COREPACK_INTEGRITY_KEYS unset: use built-in keys.
//   - set to "" or "0": skip signature checking entirely.
//   - set to a JSON object: use exactly those keys (an empty {} means no
//     compatible keys, so any signed artifact is rejected).
func ResolveKeys(env *corepackenv.Env, packageName string) (*KeySet, error) {
	raw, set := env.IntegrityKeys()
	if !set {
		return &KeySet{Keys: decodeKeyMap(builtinKeys[packageName])}, nil
	}
	if raw == "" || raw == "0" {
		return &KeySet{Skip: true}, nil
	}

	var doc keyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse COREPACK_INTEGRITY_KEYS: %w", err)
	}

	keys := map[string]ed25519.PublicKey{}
	for _, entry := range doc[packageName] {
		pub, err := base64.StdEncoding.DecodeString(entry.Key)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			continue
		}
		keys[entry.KeyID] = ed25519.PublicKey(pub)
	}
	return &KeySet{Keys: keys}, nil
}

func decodeKeyMap(raw map[string]string) map[string]ed25519.PublicKey {
	out := map[string]ed25519.PublicKey{}
	for keyID, b64 := range raw {
		pub, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			continue
		}
		out[keyID] = ed25519.PublicKey(pub)
	}
	return out
}

// Verify checks message against signatures using keys, per §4.8. A project
// pin with its own integrity suffix bypasses this check entirely - callers
// should not invoke Verify in that case (the user has asserted bit-exact
// content already).
func Verify(keys *KeySet, message []byte, signatures []Signature) error {
	if keys.Skip {
		return nil
	}
	if len(signatures) == 0 {
		return nil
	}

	sawCompatibleKey := false
	for _, sig := range signatures {
		pub, ok := keys.Keys[sig.KeyID]
		if !ok {
			continue
		}
		sawCompatibleKey = true
		decoded, err := base64.StdEncoding.DecodeString(sig.Sig)
		if err != nil {
			continue
		}
		if ed25519.Verify(pub, message, decoded) {
			return nil
		}
	}

	if !sawCompatibleKey {
		return corepackerr.New(corepackerr.SignatureFail, "No compatible signature found")
	}
	return corepackerr.New(corepackerr.SignatureFail, "Signature does not match")
}

// Signature mirrors registry.Signature to avoid a dependency from this
// package onto the registry client package.
type Signature struct {
	KeyID string
	Sig   string
}
