package domain

import "time"

// RefreshToken is one persisted row in a session lineage. The raw secret is
// never stored; TokenHash is its argon2id hash. Rows are never deleted, only
// marked used or revoked, so the table doubles as a session audit trail.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool // set when the token was consumed by a successful refresh
	Revoked   bool // set by logout or defensive revocation
	Version   int64
}

// ValidAt reports whether the token can still be presented for refresh at the
// given instant.
func (t *RefreshToken) ValidAt(now time.Time) bool {
	return !t.Used && !t.Revoked && !t.ExpiresAt.Before(now)
}
