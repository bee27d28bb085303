package testutil

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// SigningKey is a throwaway OpenPGP identity for signature tests.
type SigningKey struct {
	entity *openpgp.Entity
	// PublicArmored is the armored public keyring.
	PublicArmored []byte
}

// NewSigningKey generates a fresh OpenPGP key.
func NewSigningKey(t *testing.T) *SigningKey {
	t.Helper()

	entity, err := openpgp.NewEntity("Launcher Test", "test only", "test@example.invalid", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("failed to create armor encoder: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("failed to serialize public key: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close armor encoder: %v", err)
	}

	return &SigningKey{entity: entity, PublicArmored: buf.Bytes()}
}

// Sign returns an armored detached signature over data.
func (k *SigningKey) Sign(t *testing.T, data []byte) []byte {
	t.Helper()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, k.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return sig.Bytes()
}
