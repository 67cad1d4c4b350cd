// Package password hashes and verifies principal passwords with argon2id.
//
// A HashedPassword is a self-describing PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<digest>
//
// so parameters can be raised later without invalidating stored hashes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"golang.org/x/crypto/argon2"
)

// MinLength is the default minimum accepted plaintext length
const MinLength = 8

// Upper bounds for parameters read back from a stored hash. Anything above
// them is treated as malformed instead of being computed.
const (
	maxMemory     = 1 << 20 // KiB
	maxIterations = 64
	maxSaltLength = 64
	maxKeyLength  = 128
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("PASSWORD")

var (
	CodeInvalidArgument = ErrRegistry.Register("INVALID_ARGUMENT", errx.TypeValidation, http.StatusBadRequest, "Password does not meet the minimum requirements")
	CodeHashFailed      = ErrRegistry.Register("HASH_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Password could not be hashed")
)

func ErrInvalidArgument() *errx.Error {
	return ErrRegistry.New(CodeInvalidArgument)
}

// ============================================================================
// Parameters
// ============================================================================

// Params are the argon2id cost parameters
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP argon2id recommendation
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// TestParams are cheap parameters for unit tests only
func TestParams() Params {
	return Params{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ============================================================================
// HashedPassword
// ============================================================================

// HashedPassword is an immutable encoded argon2id hash
type HashedPassword string

func (h HashedPassword) String() string { return string(h) }
func (h HashedPassword) IsEmpty() bool  { return h == "" }

// Verify reports whether candidate matches. A malformed hash never matches.
func (h HashedPassword) Verify(candidate string) bool {
	decoded, err := decode(string(h))
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(candidate), decoded.salt, decoded.params.Iterations,
		decoded.params.Memory, decoded.params.Parallelism, uint32(len(decoded.digest)))

	return subtle.ConstantTimeCompare(computed, decoded.digest) == 1
}

type decodedHash struct {
	params Params
	salt   []byte
	digest []byte
}

func decode(encoded string) (*decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, err
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, err
	}
	if threads == 0 || threads > 255 || iterations == 0 || iterations > maxIterations ||
		memory == 0 || memory > maxMemory {
		return nil, fmt.Errorf("invalid argon2 parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, err
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 || len(salt) > maxSaltLength || len(digest) == 0 || len(digest) > maxKeyLength {
		return nil, fmt.Errorf("invalid salt or digest length")
	}

	return &decodedHash{
		params: Params{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: uint8(threads),
			SaltLength:  uint32(len(salt)),
			KeyLength:   uint32(len(digest)),
		},
		salt:   salt,
		digest: digest,
	}, nil
}

// ============================================================================
// Hasher
// ============================================================================

// Hasher creates and checks password hashes
type Hasher interface {
	Hash(plaintext string) (HashedPassword, error)
	Verify(hash HashedPassword, candidate string) bool
	NeedsRehash(hash HashedPassword) bool
}

// TimingSafeHasher can also burn a verification for a principal that does not exist
type TimingSafeHasher interface {
	Hasher
	VerifyDummy(candidate string)
}

// Argon2idHasher implements Hasher using argon2id
type Argon2idHasher struct {
	params    Params
	minLength int

	dummyOnce sync.Once
	dummy     HashedPassword
}

// NewArgon2idHasher creates a hasher; minLength < 1 falls back to MinLength
func NewArgon2idHasher(params Params, minLength int) *Argon2idHasher {
	if minLength < 1 {
		minLength = MinLength
	}
	return &Argon2idHasher{params: params, minLength: minLength}
}

// Hash rejects empty or short input with PASSWORD_INVALID_ARGUMENT
func (h *Argon2idHasher) Hash(plaintext string) (HashedPassword, error) {
	if plaintext == "" {
		return "", ErrInvalidArgument().WithDetail("reason", "password is empty")
	}
	if len([]rune(plaintext)) < h.minLength {
		return "", ErrInvalidArgument().WithDetail("min_length", h.minLength)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrRegistry.NewWithCause(CodeHashFailed, err)
	}

	digest := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return HashedPassword(fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)), nil
}

func (h *Argon2idHasher) Verify(hash HashedPassword, candidate string) bool {
	return hash.Verify(candidate)
}

// NeedsRehash reports hashes that are malformed or weaker than the current parameters
func (h *Argon2idHasher) NeedsRehash(hash HashedPassword) bool {
	decoded, err := decode(string(hash))
	if err != nil {
		return true
	}
	p := decoded.params
	return p.Memory < h.params.Memory ||
		p.Iterations < h.params.Iterations ||
		p.Parallelism < h.params.Parallelism ||
		p.KeyLength < h.params.KeyLength
}

// VerifyDummy burns the same work as a real verification. Used when the
// principal does not exist so response timing does not reveal it.
func (h *Argon2idHasher) VerifyDummy(candidate string) {
	h.dummyOnce.Do(func() {
		hashed, err := h.Hash("dummy-password-for-timing")
		if err == nil {
			h.dummy = hashed
		}
	})
	h.dummy.Verify(candidate)
}

// ============================================================================
// Package defaults
// ============================================================================

var defaultHasher = NewArgon2idHasher(DefaultParams(), MinLength)

// Create hashes plaintext with the default parameters
func Create(plaintext string) (HashedPassword, error) {
	return defaultHasher.Hash(plaintext)
}
