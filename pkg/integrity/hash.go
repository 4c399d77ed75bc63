// Package integrity implements the Integrity Verifier component (C8): hash
// verification against either a project-pinned suffix or the registry's
// Subresource Integrity string, and detached signature verification over
// registry metadata.
package integrity

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/corepack-go/corepack/pkg/corepackerr"
)

// NewHasher returns a streaming hash.Hash for one of the algorithms the
// specification recognizes by prefix: sha1, sha224, sha256, sha512.
func NewHasher(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "sha1":
		return sha1.New(), nil
	case "sha224":
		return sha256.New224(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
	}
}

// VerifyHex compares a computed digest against an expected hex digest,
// case-insensitively, returning a HashMismatch error with the exact wording
// the specification requires on failure.
func VerifyHex(computed []byte, expectedHex string) error {
	actual := hex.EncodeToString(computed)
	if !strings.EqualFold(actual, expectedHex) {
		return corepackerr.Newf(corepackerr.HashMismatch, "Mismatch hashes. Expected %s, got %s", expectedHex, actual)
	}
	return nil
}

// SRI is a parsed Subresource-Integrity string ("<algo>-<base64digest>"),
// the form the registry returns in dist.integrity.
type SRI struct {
	Algo   string
	Digest []byte
}

// ParseSRI parses a Subresource-Integrity string.
func ParseSRI(value string) (*SRI, error) {
	algo, b64, ok := strings.Cut(value, "-")
	if !ok {
		return nil, fmt.Errorf("malformed integrity value: %s", value)
	}
	digest, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("malformed integrity digest: %w", err)
	}
	return &SRI{Algo: strings.ToLower(algo), Digest: digest}, nil
}

// Verify checks a computed digest against the SRI value.
func (s *SRI) Verify(computed []byte) error {
	if !bytes.Equal(computed, s.Digest) {
		return corepackerr.Newf(corepackerr.HashMismatch, "Mismatch hashes. Expected %s, got %s",
			base64.StdEncoding.EncodeToString(s.Digest), base64.StdEncoding.EncodeToString(computed))
	}
	return nil
}

// Message returns the message over which an SRI's signatures are computed:
// "<package>@<version>:<integrity>".
func Message(packageName, version, integrity string) []byte {
	return []byte(fmt.Sprintf("%s@%s:%s", packageName, version, integrity))
}
