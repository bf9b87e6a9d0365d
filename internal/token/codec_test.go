package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testConfig = Config{
	Secret:   []byte("0123456789abcdef0123456789abcdef"),
	Issuer:   "devicehub-auth",
	Audience: "devicehub-api",
}

var testIdentity = Identity{
	Subject:    "7c9e6679-7425-40de-944b-e07fc1f90ae7",
	Email:      "a@x.com",
	GivenName:  "Ada",
	FamilyName: "Lovelace",
	Roles:      []string{"admin", "user"},
}

func mustCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_WeakSecret(t *testing.T) {
	for _, secret := range [][]byte{nil, []byte(""), []byte(strings.Repeat("x", MinSecretBytes-1))} {
		if _, err := New(Config{Secret: secret, Issuer: "i", Audience: "a"}); !errors.Is(err, ErrWeakSecret) {
			t.Errorf("New with %d-byte secret: err = %v, want ErrWeakSecret", len(secret), err)
		}
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	c := mustCodec(t)
	signed, expiresAt, err := c.Issue(testIdentity, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if until := time.Until(expiresAt); until < 14*time.Minute || until > 15*time.Minute {
		t.Errorf("expiry %v not ~15m out", expiresAt)
	}

	claims, err := c.Verify(signed, VerifyOptions{ValidateExpiry: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != testIdentity.Subject {
		t.Errorf("sub = %q, want %q", claims.Subject, testIdentity.Subject)
	}
	if claims.Email != testIdentity.Email {
		t.Errorf("email = %q, want %q", claims.Email, testIdentity.Email)
	}
	if claims.GivenName != "Ada" || claims.FamilyName != "Lovelace" {
		t.Errorf("names = %q %q", claims.GivenName, claims.FamilyName)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "user" {
		t.Errorf("roles = %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

func TestIssue_UniqueJTI(t *testing.T) {
	c := mustCodec(t)
	s1, _, _ := c.Issue(testIdentity, time.Minute)
	s2, _, _ := c.Issue(testIdentity, time.Minute)
	c1, _ := c.Verify(s1, VerifyOptions{})
	c2, _ := c.Verify(s2, VerifyOptions{})
	if c1.ID == c2.ID {
		t.Error("two issued tokens share a jti")
	}
}

func TestVerify_Expired(t *testing.T) {
	c := mustCodec(t)
	signed, _, err := c.Issue(testIdentity, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := c.Verify(signed, VerifyOptions{ValidateExpiry: true}); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify expired with expiry check: err = %v, want ErrExpired", err)
	}

	// The refresh flow reads claims out of expired tokens.
	claims, err := c.Verify(signed, VerifyOptions{ValidateExpiry: false})
	if err != nil {
		t.Fatalf("Verify expired without expiry check: %v", err)
	}
	if claims.Subject != testIdentity.Subject {
		t.Errorf("sub = %q, want %q", claims.Subject, testIdentity.Subject)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	c := mustCodec(t)
	other, _ := New(Config{
		Secret:   []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:   testConfig.Issuer,
		Audience: testConfig.Audience,
	})
	signed, _, _ := other.Issue(testIdentity, time.Minute)
	if _, err := c.Verify(signed, VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	c := mustCodec(t)
	for _, s := range []string{"", "garbage", "a.b.c"} {
		if _, err := c.Verify(s, VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("Verify(%q): err = %v, want ErrInvalidSignature", s, err)
		}
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	c := mustCodec(t)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testIdentity.Subject,
			Issuer:    testConfig.Issuer,
			Audience:  jwt.ClaimStrings{testConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none: %v", err)
	}
	if _, err := c.Verify(unsigned, VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature for alg=none", err)
	}
}

func TestVerify_WrongIssuerAudience(t *testing.T) {
	c := mustCodec(t)

	otherIssuer, _ := New(Config{Secret: testConfig.Secret, Issuer: "evil", Audience: testConfig.Audience})
	signed, _, _ := otherIssuer.Issue(testIdentity, time.Minute)
	if _, err := c.Verify(signed, VerifyOptions{}); !errors.Is(err, ErrInvalidIssuerOrAudience) {
		t.Errorf("issuer mismatch: err = %v, want ErrInvalidIssuerOrAudience", err)
	}

	otherAud, _ := New(Config{Secret: testConfig.Secret, Issuer: testConfig.Issuer, Audience: "elsewhere"})
	signed, _, _ = otherAud.Issue(testIdentity, time.Minute)
	if _, err := c.Verify(signed, VerifyOptions{}); !errors.Is(err, ErrInvalidIssuerOrAudience) {
		t.Errorf("audience mismatch: err = %v, want ErrInvalidIssuerOrAudience", err)
	}
}
