// Package repository persists refresh-token rows. It holds no business rules;
// the session service decides when rows transition.
package repository

import (
	"context"
	"errors"

	"devicehub/backend/internal/refreshtoken/domain"
)

// ErrVersionConflict is returned by Update when the row's stored version does
// not match the version the caller read. The caller lost a concurrent
// read-modify-write race and must not retry with the stale row.
var ErrVersionConflict = errors.New("refresh token: version conflict")

// Store defines persistence for refresh tokens. There is no delete: rows are
// retained permanently from this layer's point of view.
//
// Update is a compare-and-set keyed on Version: it applies the row's Used and
// Revoked flags only if the stored version still matches, and increments the
// version on success (mirrored back onto the passed row). Add and Update
// performed inside InTx commit or roll back as one unit; a returned error or
// context cancellation rolls everything back.
type Store interface {
	Add(ctx context.Context, t *domain.RefreshToken) error
	Update(ctx context.Context, t *domain.RefreshToken) error
	GetValidCandidates(ctx context.Context, userID string) ([]*domain.RefreshToken, error)
	InTx(ctx context.Context, fn func(Store) error) error
}
