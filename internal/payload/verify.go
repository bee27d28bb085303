package payload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// VerificationMethod indicates how a payload was verified
type VerificationMethod int

const (
	// VerificationNone indicates the payload was installed unverified by policy
	VerificationNone VerificationMethod = iota
	// VerificationSHA256 indicates the payload matched the published digest
	VerificationSHA256
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationSHA256:
		return "SHA256"
	case VerificationNone:
		return "unverified"
	default:
		return "Unknown"
	}
}

// Verification is the outcome of a successful integrity decision.
type Verification struct {
	Method VerificationMethod
	// Digest is the computed hex SHA-256 of the payload.
	Digest string
}

// Verified reports whether a digest was actually compared.
func (v *Verification) Verified() bool {
	return v != nil && v.Method == VerificationSHA256
}

// Verifier checks payload integrity.
type Verifier struct {
	allowUnverified bool
	chunkSize       int
}

// NewVerifier creates a verifier. allowUnverified permits payloads whose
// manifest entry carries no digest.
func NewVerifier(allowUnverified bool) *Verifier {
	return &Verifier{allowUnverified: allowUnverified, chunkSize: DefaultChunkSize}
}

// AllowsUnverified reports the unverified-install policy.
func (v *Verifier) AllowsUnverified() bool {
	return v.allowUnverified
}

// Verify hashes the file at path and compares it to expectedHex
// case-insensitively. An empty expectedHex is accepted only under the
// unverified policy and yields VerificationNone.
func (v *Verifier) Verify(ctx context.Context, path, expectedHex string) (*Verification, error) {
	actual, err := digestFile(ctx, path, v.chunkSize)
	if err != nil {
		return nil, err
	}

	expected := strings.TrimSpace(expectedHex)
	if expected == "" {
		if !v.allowUnverified {
			return nil, &HashMismatchError{Path: path, Actual: actual}
		}
		return &Verification{Method: VerificationNone, Digest: actual}, nil
	}

	// Compare checksums (case-insensitive)
	if !strings.EqualFold(actual, expected) {
		return nil, &HashMismatchError{Path: path, Expected: expected, Actual: actual}
	}

	return &Verification{Method: VerificationSHA256, Digest: actual}, nil
}

// DigestFile returns the hex SHA-256 of a file, streamed in fixed-size chunks.
func DigestFile(path string) (string, error) {
	return digestFile(context.Background(), path, DefaultChunkSize)
}

func digestFile(ctx context.Context, path string, chunkSize int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &FilesystemError{Op: "open payload", Path: path, Err: err}
	}
	defer file.Close()

	sum, err := DigestReader(ctx, file, chunkSize)
	if err != nil {
		return "", &FilesystemError{Op: "hash payload", Path: path, Err: err}
	}
	return sum, nil
}

// DigestReader returns the hex SHA-256 of r, checking ctx between chunks.
func DigestReader(ctx context.Context, r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// LoadKeyring loads an armored or binary OpenPGP keyring from disk.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ParseKeyring(data)
}

// ParseKeyring parses an armored or binary OpenPGP keyring.
func ParseKeyring(data []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		// Try reading as non-armored keyring
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// VerifySignature checks a detached OpenPGP signature (armored or binary)
// over data.
func VerifySignature(keyring openpgp.EntityList, data, signature []byte) error {
	if len(signature) == 0 {
		return fmt.Errorf("signature is empty")
	}

	_, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		// Try non-armored signature
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}
