package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"devicehub/backend/internal/directory/domain"
	"devicehub/backend/internal/security"
)

// MemoryDirectory is an in-memory directory with the same contract as the
// Postgres one.
type MemoryDirectory struct {
	mu      sync.Mutex
	byID    map[string]*memoryUser
	byEmail map[string]*memoryUser
	hasher  *security.PasswordHasher
}

type memoryUser struct {
	principal    domain.Principal
	passwordHash string
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory(hasher *security.PasswordHasher) *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*memoryUser),
		byEmail: make(map[string]*memoryUser),
		hasher:  hasher,
	}
}

// FindByEmail returns the principal registered under email.
func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := u.principal
	return &p, nil
}

// FindByID returns the principal with the given id.
func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := u.principal
	return &p, nil
}

// VerifyCredential checks secret against the stored password hash.
func (d *MemoryDirectory) VerifyCredential(ctx context.Context, p *domain.Principal, secret string) (bool, error) {
	d.mu.Lock()
	u, ok := d.byID[p.ID]
	d.mu.Unlock()
	if !ok {
		return false, nil
	}
	return d.hasher.Compare(u.passwordHash, []byte(secret)) == nil, nil
}

// CreatePrincipal registers a new active principal.
func (d *MemoryDirectory) CreatePrincipal(ctx context.Context, profile domain.Profile, secret string) (*domain.Principal, error) {
	hash, err := d.hasher.Hash([]byte(secret))
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	email := normalizeEmail(profile.Email)
	if _, exists := d.byEmail[email]; exists {
		return nil, domain.ErrDuplicate
	}

	now := time.Now().UTC()
	p := domain.Principal{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		Roles:     append([]string(nil), profile.Roles...),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(p.Roles) == 0 {
		p.Roles = []string{domain.DefaultRole}
	}
	sort.Strings(p.Roles)

	u := &memoryUser{principal: p, passwordHash: hash}
	d.byID[p.ID] = u
	d.byEmail[email] = u
	out := p
	return &out, nil
}

// GetRoles returns the principal's current roles.
func (d *MemoryDirectory) GetRoles(ctx context.Context, p *domain.Principal) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[p.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), u.principal.Roles...), nil
}

// SetActive flips a principal's active flag. Dev and test helper; the real
// directory UI is out of scope.
func (d *MemoryDirectory) SetActive(id string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		u.principal.Active = active
	}
}

// Delete removes a principal entirely. Test helper for the deleted-since-
// issuance refresh path.
func (d *MemoryDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		delete(d.byEmail, u.principal.Email)
		delete(d.byID, id)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
