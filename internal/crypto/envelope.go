// Package crypto implements the field-level envelope encryption and the
// identifier generators.
//
// Every value is encrypted under a per-record subkey derived from the
// master key via HKDF-SHA256 with a caller-supplied context string
// ("<record_id>:<field_name>"). The context is additionally bound as AEAD
// associated data, so a value copied between records fails to decrypt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// Sentinel causes, distinguishable internally. Callers outside this package
// surface every one of them as a single opaque failure kind.
var (
	// ErrInvalidFormat: the stored value is structurally broken (bad
	// base64, truncated envelope).
	ErrInvalidFormat = errors.New("encrypted value has invalid format")
	// ErrAuthentication: AEAD open failed — wrong context or tampered data.
	ErrAuthentication = errors.New("decryption failed: context mismatch or tampered data")
	// ErrMissingContext: caller passed an empty context. Always a bug.
	ErrMissingContext = errors.New("encryption context is required")
)

// Envelope encrypts and decrypts individual field values.
type Envelope struct {
	ikm []byte // SHA-256 of the configured master secret
}

// NewEnvelope derives the master key from the configured secret string.
// The secret must be at least 32 characters.
func NewEnvelope(masterSecret string) (*Envelope, error) {
	if len(masterSecret) < 32 {
		return nil, fmt.Errorf("master secret must be at least 32 characters, got %d", len(masterSecret))
	}
	sum := sha256.Sum256([]byte(masterSecret))
	return &Envelope{ikm: sum[:]}, nil
}

// Encrypt encrypts plaintext under a fresh subkey bound to context.
// Output format: base64(salt16 ‖ nonce12 ‖ ciphertext ‖ tag16).
// Empty input passes through as empty output.
func (e *Envelope) Encrypt(plaintext, context string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if context == "" {
		return "", ErrMissingContext
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt generation: %w", err)
	}

	subkey, err := e.deriveSubkey(salt, context)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}

	// Seal appends the 16-byte tag to the ciphertext.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), []byte(context))

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. The context must match the one used at
// encryption time.
func (e *Envelope) Decrypt(encoded, context string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	if context == "" {
		return "", ErrMissingContext
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidFormat
	}
	if len(raw) < saltSize+nonceSize+tagSize {
		return "", ErrInvalidFormat
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	sealed := raw[saltSize+nonceSize:]

	subkey, err := e.deriveSubkey(salt, context)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(context))
	if err != nil {
		return "", ErrAuthentication
	}

	return string(plaintext), nil
}

// deriveSubkey runs HKDF-SHA256 over the master key with the per-value
// salt and the context as info.
func (e *Envelope) deriveSubkey(salt []byte, context string) ([]byte, error) {
	r := hkdf.New(sha256.New, e.ikm, salt, []byte(context))
	subkey := make([]byte, keySize)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, fmt.Errorf("subkey derivation: %w", err)
	}
	return subkey, nil
}

// SearchHash computes the equality-lookup hash for an encrypted column:
// hex(SHA-256(salt ":" value)). Not usable for authentication.
func SearchHash(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + ":" + value))
	return hex.EncodeToString(sum[:])
}

// GenerateMasterKey returns a fresh hex-encoded 256-bit key, for use when
// provisioning the ENCRYPTION_MASTER_KEY configuration value.
func GenerateMasterKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("key generation: %w", err)
	}
	return hex.EncodeToString(key), nil
}
