package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"devicehub/backend/internal/refreshtoken/domain"
)

// MemoryStore implements Store in memory, mirroring the Postgres adapter's
// semantics (version compare-and-set, transactional unit of work). It backs
// the dev server when no DATABASE_URL is configured, and the service tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]domain.RefreshToken
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]domain.RefreshToken)}
}

// Add inserts a new row. Duplicate ids are rejected.
func (s *MemoryStore) Add(ctx context.Context, t *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return addRow(s.rows, t)
}

// Update applies Used/Revoked with a version check, like the SQL adapter.
func (s *MemoryStore) Update(ctx context.Context, t *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRow(s.rows, t)
}

// GetValidCandidates returns copies of the user's currently valid rows,
// newest first.
func (s *MemoryStore) GetValidCandidates(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return candidates(s.rows, userID), nil
}

// InTx runs fn against a staged view of the store under the store lock.
// Staged writes are merged only when fn returns nil and the context is still
// live, so a failed unit of work leaves no partial state.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{base: s.rows, staged: make(map[string]domain.RefreshToken)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, row := range tx.staged {
		s.rows[id] = row
	}
	return nil
}

// memoryTx is a staged overlay over the base map. It runs while the parent
// store's lock is held, so it needs no locking of its own.
type memoryTx struct {
	base   map[string]domain.RefreshToken
	staged map[string]domain.RefreshToken
}

func (tx *memoryTx) view(id string) (domain.RefreshToken, bool) {
	if row, ok := tx.staged[id]; ok {
		return row, true
	}
	row, ok := tx.base[id]
	return row, ok
}

func (tx *memoryTx) Add(ctx context.Context, t *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	merged := make(map[string]domain.RefreshToken, len(tx.base)+len(tx.staged))
	for id, row := range tx.base {
		merged[id] = row
	}
	for id, row := range tx.staged {
		merged[id] = row
	}
	if err := addRow(merged, t); err != nil {
		return err
	}
	tx.staged[t.ID] = merged[t.ID]
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, t *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, ok := tx.view(t.ID)
	if !ok || current.Version != t.Version {
		return ErrVersionConflict
	}
	current.Used = t.Used
	current.Revoked = t.Revoked
	current.Version++
	tx.staged[t.ID] = current
	t.Version = current.Version
	return nil
}

func (tx *memoryTx) GetValidCandidates(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged := make(map[string]domain.RefreshToken, len(tx.base)+len(tx.staged))
	for id, row := range tx.base {
		merged[id] = row
	}
	for id, row := range tx.staged {
		merged[id] = row
	}
	return candidates(merged, userID), nil
}

// InTx on a transaction reuses the transaction, matching the SQL adapter.
func (tx *memoryTx) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(tx)
}

func addRow(rows map[string]domain.RefreshToken, t *domain.RefreshToken) error {
	if _, exists := rows[t.ID]; exists {
		return errors.New("refresh token: duplicate id")
	}
	if t.Version == 0 {
		t.Version = 1
	}
	rows[t.ID] = *t
	return nil
}

func updateRow(rows map[string]domain.RefreshToken, t *domain.RefreshToken) error {
	current, ok := rows[t.ID]
	if !ok || current.Version != t.Version {
		return ErrVersionConflict
	}
	current.Used = t.Used
	current.Revoked = t.Revoked
	current.Version++
	rows[t.ID] = current
	t.Version = current.Version
	return nil
}

func candidates(rows map[string]domain.RefreshToken, userID string) []*domain.RefreshToken {
	now := time.Now().UTC()
	var out []*domain.RefreshToken
	for _, row := range rows {
		if row.UserID != userID {
			continue
		}
		if !row.ValidAt(now) {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
