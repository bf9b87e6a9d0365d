package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when a stored refresh-token hash cannot be parsed.
var ErrInvalidHash = errors.New("security: invalid refresh token hash")

// RefreshSecretBytes is the entropy of a raw refresh secret before encoding.
const RefreshSecretBytes = 64

// NewRefreshSecret returns a fresh high-entropy refresh secret, base64url
// encoded. The raw secret is returned to the client exactly once and only its
// argon2id hash is ever persisted.
func NewRefreshSecret() (string, error) {
	b := make([]byte, RefreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RefreshHasherParams are argon2id cost parameters.
type RefreshHasherParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultRefreshHasherParams follows the OWASP argon2id recommendation.
var DefaultRefreshHasherParams = RefreshHasherParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// RefreshHasher hashes refresh-token secrets with argon2id so a leaked
// database does not yield usable secrets. A slow KDF is deliberate here; a
// fast digest would make offline guessing of leaked hashes cheap.
type RefreshHasher struct {
	params RefreshHasherParams
}

// NewRefreshHasher returns a hasher with the default parameters.
func NewRefreshHasher() *RefreshHasher {
	return NewRefreshHasherWithParams(DefaultRefreshHasherParams)
}

// NewRefreshHasherWithParams returns a hasher with explicit parameters.
// Intended for tests that need cheaper settings; zero fields fall back to the
// defaults.
func NewRefreshHasherWithParams(p RefreshHasherParams) *RefreshHasher {
	d := DefaultRefreshHasherParams
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = d.SaltLen
	}
	return &RefreshHasher{params: p}
}

// Hash derives an argon2id hash of secret with a random salt and returns it in
// PHC string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func (h *RefreshHasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the hash of candidate using the parameters and salt stored
// in encodedHash and compares in constant time. Returns ErrInvalidHash when
// the stored value is not a well-formed argon2id PHC string.
func (h *RefreshHasher) Verify(encodedHash, candidate string) (bool, error) {
	salt, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	derived := argon2.IDKey([]byte(candidate), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, derived) == 1, nil
}

func decodePHC(encoded string) (salt, key []byte, params RefreshHasherParams, err error) {
	parts := strings.Split(encoded, "$")
	// "" / argon2id / v=19 / m=..,t=..,p=.. / salt / hash
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, params, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, params, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return nil, nil, params, ErrInvalidHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, ErrInvalidHash
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, ErrInvalidHash
	}
	if len(salt) == 0 || len(key) == 0 {
		return nil, nil, params, ErrInvalidHash
	}
	return salt, key, params, nil
}
