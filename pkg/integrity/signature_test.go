package integrity

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"testing"

	"github.com/corepack-go/corepack/pkg/corepackenv"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestResolveKeysEmptyStringSkips(t *testing.T) {
	withEnv(t, "COREPACK_INTEGRITY_KEYS", "")
	env, _ := corepackenv.Load("")
	ks, err := ResolveKeys(env, "npm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ks.Skip {
		t.Fatal("expected empty string to skip signature checking")
	}
}

func TestResolveKeysZeroSkips(t *testing.T) {
	withEnv(t, "COREPACK_INTEGRITY_KEYS", "0")
	env, _ := corepackenv.Load("")
	ks, err := ResolveKeys(env, "npm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ks.Skip {
		t.Fatal("expected \"0\" to skip signature checking")
	}
}

func TestResolveKeysEmptyObjectRejectsSigned(t *testing.T) {
	withEnv(t, "COREPACK_INTEGRITY_KEYS", "{}")
	env, _ := corepackenv.Load("")
	ks, err := ResolveKeys(env, "npm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ks.Skip {
		t.Fatal("expected {} to not skip checking")
	}
	if len(ks.Keys) != 0 {
		t.Fatal("expected no compatible keys from {}")
	}

	err = Verify(ks, []byte("msg"), []Signature{{KeyID: "anything", Sig: "AA=="}})
	if err == nil {
		t.Fatal("expected signed artifact to be rejected when no keys are compatible")
	}
}

func TestVerifyWithGeneratedKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	message := []byte("pkg@1.0.0:sha512-abc")
	sig := ed25519.Sign(priv, message)

	ks := &KeySet{Keys: map[string]ed25519.PublicKey{"test-key": pub}}
	err = Verify(ks, message, []Signature{{KeyID: "test-key", Sig: base64.StdEncoding.EncodeToString(sig)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyWrongSignatureFails(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	ks := &KeySet{Keys: map[string]ed25519.PublicKey{"test-key": pub}}
	badSig := make([]byte, ed25519.SignatureSize)
	err = Verify(ks, []byte("msg"), []Signature{{KeyID: "test-key", Sig: base64.StdEncoding.EncodeToString(badSig)}})
	if err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestVerifyNoSignaturesOk(t *testing.T) {
	ks := &KeySet{Keys: map[string]ed25519.PublicKey{}}
	if err := Verify(ks, []byte("msg"), nil); err != nil {
		t.Fatalf("expected no error with no signatures present, got %v", err)
	}
}
