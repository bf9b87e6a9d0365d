package repository

import (
	"context"
	"database/sql"
	"fmt"

	"devicehub/backend/internal/refreshtoken/domain"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresStore implements Store over Postgres via database/sql.
type PostgresStore struct {
	db *sql.DB
	q  querier
}

// NewPostgresStore returns a refresh-token store backed by the given db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Add inserts a new refresh-token row. New rows start at version 1.
func (s *PostgresStore) Add(ctx context.Context, t *domain.RefreshToken) error {
	if t.Version == 0 {
		t.Version = 1
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, used, revoked, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.Used, t.Revoked, t.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

// Update applies the row's Used/Revoked flags with an optimistic version
// check. Zero rows affected means another call consumed the row first.
func (s *PostgresStore) Update(ctx context.Context, t *domain.RefreshToken) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET used = $2, revoked = $3, version = version + 1
		 WHERE id = $1 AND version = $4`,
		t.ID, t.Used, t.Revoked, t.Version,
	)
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	t.Version++
	return nil
}

// GetValidCandidates returns the user's unused, unrevoked, unexpired rows,
// newest first. Matching a presented raw secret against them is the caller's
// job; the store cannot look up by secret.
func (s *PostgresStore) GetValidCandidates(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, used, revoked, version
		 FROM refresh_tokens
		 WHERE user_id = $1 AND expires_at >= now() AND NOT used AND NOT revoked
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.Used, &t.Revoked, &t.Version); err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying refresh tokens: %w", err)
	}
	return out, nil
}

// InTx runs fn against a store bound to a single transaction. fn returning an
// error (or the context being cancelled) rolls the transaction back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
