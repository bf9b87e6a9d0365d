// Package token issues and verifies the signed access tokens handed to clients.
//
// Tokens are self-contained HS256 JWTs. Validity is determined entirely by
// signature and expiry at verification time; nothing here is persisted.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the minimum HMAC secret length accepted by New.
const MinSecretBytes = 32

var (
	// ErrWeakSecret is returned by New when the signing secret is absent or too
	// short. This is a startup-time condition, never a per-request error.
	ErrWeakSecret = fmt.Errorf("token: signing secret must be at least %d bytes", MinSecretBytes)
	// ErrInvalidSignature is returned for malformed tokens, tokens signed with
	// the wrong key, and tokens using any algorithm other than HS256.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrInvalidIssuerOrAudience is returned when iss or aud does not match the
	// codec's configuration.
	ErrInvalidIssuerOrAudience = errors.New("token: invalid issuer or audience")
	// ErrExpired is returned by Verify when expiry validation is requested and
	// the token is past its exp claim.
	ErrExpired = errors.New("token: expired")
)

// Claims is the canonical access-token claim set.
type Claims struct {
	jwt.RegisteredClaims
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// Identity is the principal material encoded into a token by Issue.
type Identity struct {
	Subject    string // principal id
	Email      string
	GivenName  string
	FamilyName string
	Roles      []string
}

// VerifyOptions controls claim validation in Verify. Signature, algorithm,
// issuer, and audience are always checked; expiry only when ValidateExpiry is
// true, because the refresh flow must read claims out of an expired token.
type VerifyOptions struct {
	ValidateExpiry bool
}

// Config holds the immutable signing configuration injected into a Codec.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Codec encodes, decodes, and verifies access tokens. Safe for concurrent use.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
}

// New returns a Codec for the given configuration. Returns ErrWeakSecret when
// the secret is shorter than MinSecretBytes.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Codec{secret: secret, issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

// Issue signs a token for id with the given lifetime and returns the compact
// string and its expiry. Every token carries a fresh jti.
func (c *Codec) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.Subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:      id.Email,
		GivenName:  id.GivenName,
		FamilyName: id.FamilyName,
		Roles:      id.Roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses tokenString and returns its claims. The signing method is
// pinned to HS256; any other header algorithm fails with ErrInvalidSignature.
// Expiry is checked manually so callers can read claims out of expired tokens.
func (c *Codec) Verify(tokenString string, opts VerifyOptions) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidSignature
	}

	if claims.Issuer != c.issuer {
		return nil, ErrInvalidIssuerOrAudience
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == c.audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, ErrInvalidIssuerOrAudience
	}

	if opts.ValidateExpiry {
		if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now().UTC()) {
			return nil, ErrExpired
		}
	}
	return claims, nil
}
