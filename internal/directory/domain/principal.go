package domain

import (
	"errors"
	"time"
)

// Sentinel errors shared by all directory implementations.
var (
	ErrNotFound  = errors.New("directory: principal not found")
	ErrDuplicate = errors.New("directory: email already registered")
)

// Principal is an authenticated identity as the session core sees it. The
// directory owns the record; the core only reads it.
type Principal struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Roles     []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the input to CreatePrincipal. Empty Roles defaults to
// DefaultRole.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Roles     []string
}

// DefaultRole is granted to principals created without explicit roles.
const DefaultRole = "user"
