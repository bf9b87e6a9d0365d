// Package repository implements the user directory over Postgres, plus an
// in-memory variant for tests and the dev server.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"devicehub/backend/internal/directory/domain"
	"devicehub/backend/internal/security"
)

const pgUniqueViolation = "23505"

// PostgresDirectory is the users/user_roles-backed directory.
type PostgresDirectory struct {
	db     *sql.DB
	hasher *security.PasswordHasher
}

// NewPostgresDirectory returns a directory over db that verifies credentials
// with the given password hasher.
func NewPostgresDirectory(db *sql.DB, hasher *security.PasswordHasher) *PostgresDirectory {
	return &PostgresDirectory{db: db, hasher: hasher}
}

// FindByEmail returns the principal registered under email, roles included.
// Returns domain.ErrNotFound when no such principal exists.
func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return d.findOne(ctx, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

// FindByID returns the principal with the given id, roles included.
func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	return d.findOne(ctx, "id = $1", id)
}

func (d *PostgresDirectory) findOne(ctx context.Context, where, arg string) (*domain.Principal, error) {
	var p domain.Principal
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, active, created_at, updated_at
		 FROM users WHERE `+where, arg,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	roles, err := d.rolesFor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Roles = roles
	return &p, nil
}

// VerifyCredential checks secret against the principal's stored password
// hash. A missing row (principal deleted since lookup) verifies as false.
func (d *PostgresDirectory) VerifyCredential(ctx context.Context, p *domain.Principal, secret string) (bool, error) {
	var hash string
	err := d.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, p.ID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying password hash: %w", err)
	}
	return d.hasher.Compare(hash, []byte(secret)) == nil, nil
}

// CreatePrincipal inserts a new active principal with the hashed secret and
// the profile's roles (DefaultRole when none given). Returns
// domain.ErrDuplicate when the email is already registered.
func (d *PostgresDirectory) CreatePrincipal(ctx context.Context, profile domain.Profile, secret string) (*domain.Principal, error) {
	hash, err := d.hasher.Hash([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Principal{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		Roles:     profile.Roles,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(p.Roles) == 0 {
		p.Roles = []string{domain.DefaultRole}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, password_hash, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Email, p.FirstName, p.LastName, hash, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrDuplicate
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	for _, role := range p.Roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, p.ID, role,
		); err != nil {
			return nil, fmt.Errorf("inserting role: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return p, nil
}

// GetRoles returns the principal's current role names, sorted.
func (d *PostgresDirectory) GetRoles(ctx context.Context, p *domain.Principal) ([]string, error) {
	return d.rolesFor(ctx, p.ID)
}

func (d *PostgresDirectory) rolesFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	return roles, nil
}
