// Package secret seals tenant-supplied secrets (API keys, SMTP passwords,
// OAuth client secrets) for storage.
//
// Ciphertext format:
//
//	v1:<keyID>:<base64url(nonce || aes-256-gcm ciphertext)>
//
// The key id selects the decryption key, so values sealed under a previous
// master key keep opening while they are re-encrypted under the primary.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/errx"
)

const formatVersion = "v1"

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SECRET")

var (
	CodeDecryptionFailed = ErrRegistry.Register("DECRYPTION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Secret could not be decrypted")
	CodeEncryptionFailed = ErrRegistry.Register("ENCRYPTION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Secret could not be encrypted")
	CodeInvalidKey       = ErrRegistry.Register("INVALID_KEY", errx.TypeInternal, http.StatusInternalServerError, "Encryption key is invalid")
)

// ErrDecryptionFailed carries no detail about which check failed.
func ErrDecryptionFailed() *errx.Error {
	return ErrRegistry.New(CodeDecryptionFailed)
}

// Cipher is the reversible encryption used by repositories before write and after read
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// RotatingCipher also reports values sealed with a retired key
type RotatingCipher interface {
	Cipher
	NeedsReencrypt(ciphertext string) bool
}

// ============================================================================
// Keyring
// ============================================================================

// Keyring encrypts with one primary key and decrypts with any key it holds
type Keyring struct {
	primaryID string
	keys      map[string]cipher.AEAD
}

// NewKeyring builds a keyring from a 32-byte primary key and optional previous keys
func NewKeyring(primaryID string, primary []byte, previous map[string][]byte) (*Keyring, error) {
	if primaryID == "" || strings.Contains(primaryID, ":") {
		return nil, ErrRegistry.NewWithMessage(CodeInvalidKey, "key id must be non-empty and must not contain ':'")
	}

	kr := &Keyring{
		primaryID: primaryID,
		keys:      make(map[string]cipher.AEAD, len(previous)+1),
	}

	aead, err := newAEAD(primary)
	if err != nil {
		return nil, err
	}
	kr.keys[primaryID] = aead

	for id, key := range previous {
		if id == primaryID {
			continue
		}
		if id == "" || strings.Contains(id, ":") {
			return nil, ErrRegistry.NewWithMessage(CodeInvalidKey, "key id must be non-empty and must not contain ':'")
		}
		aead, err := newAEAD(key)
		if err != nil {
			return nil, err
		}
		kr.keys[id] = aead
	}

	return kr, nil
}

// NewKeyringFromConfig reads keys from configuration only, never from storage
func NewKeyringFromConfig(cfg config.EncryptionConfig) (*Keyring, error) {
	primary, previous, err := cfg.Keys()
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidKey, err)
	}
	return NewKeyring(cfg.KeyID, primary, previous)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrRegistry.NewWithMessage(CodeInvalidKey, "key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidKey, err)
	}
	return aead, nil
}

// PrimaryKeyID returns the id new ciphertext is sealed under
func (k *Keyring) PrimaryKeyID() string {
	return k.primaryID
}

// Encrypt seals plaintext under the primary key with a fresh nonce
func (k *Keyring) Encrypt(plaintext string) (string, error) {
	aead := k.keys[k.primaryID]

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrRegistry.NewWithCause(CodeEncryptionFailed, err)
	}

	// the key id is authenticated so a payload cannot be relabeled
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(k.primaryID))

	return formatVersion + ":" + k.primaryID + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed by Encrypt. Every failure is SECRET_DECRYPTION_FAILED.
func (k *Keyring) Decrypt(ciphertext string) (string, error) {
	keyID, payload, err := k.parse(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed().WithCause(err)
	}

	aead, ok := k.keys[keyID]
	if !ok {
		return "", ErrDecryptionFailed().WithCause(fmt.Errorf("unknown key id %q", keyID))
	}

	nonceSize := aead.NonceSize()
	if len(payload) < nonceSize+aead.Overhead() {
		return "", ErrDecryptionFailed().WithCause(fmt.Errorf("payload too short"))
	}

	plaintext, err := aead.Open(nil, payload[:nonceSize], payload[nonceSize:], []byte(keyID))
	if err != nil {
		return "", ErrDecryptionFailed().WithCause(err)
	}
	return string(plaintext), nil
}

// NeedsReencrypt reports values sealed under a key other than the primary
func (k *Keyring) NeedsReencrypt(ciphertext string) bool {
	keyID, _, err := k.parse(ciphertext)
	return err == nil && keyID != k.primaryID
}

func (k *Keyring) parse(ciphertext string) (string, []byte, error) {
	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != formatVersion || parts[1] == "" {
		return "", nil, fmt.Errorf("malformed ciphertext")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}
	return parts[1], payload, nil
}

// ============================================================================
// Optional fields
// ============================================================================

// EncryptOptional leaves an empty value empty
func EncryptOptional(c Cipher, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return c.Encrypt(plaintext)
}

// DecryptOptional leaves an empty value empty
func DecryptOptional(c Cipher, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	return c.Decrypt(ciphertext)
}
