package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"devicehub/backend/internal/refreshtoken/domain"
)

func newRow(userID string, expiresIn time.Duration) *domain.RefreshToken {
	now := time.Now().UTC()
	return &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestMemoryStore_AddSetsVersion(t *testing.T) {
	s := NewMemoryStore()
	row := newRow("u1", time.Hour)
	if err := s.Add(context.Background(), row); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if row.Version != 1 {
		t.Errorf("Version = %d, want 1", row.Version)
	}
	if err := s.Add(context.Background(), row); err == nil {
		t.Error("duplicate Add should fail")
	}
}

func TestMemoryStore_GetValidCandidates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	valid := newRow("u1", time.Hour)
	expired := newRow("u1", -time.Minute)
	used := newRow("u1", time.Hour)
	revoked := newRow("u1", time.Hour)
	otherUser := newRow("u2", time.Hour)

	for _, row := range []*domain.RefreshToken{valid, expired, used, revoked, otherUser} {
		if err := s.Add(ctx, row); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	used.Used = true
	if err := s.Update(ctx, used); err != nil {
		t.Fatalf("Update used: %v", err)
	}
	revoked.Revoked = true
	if err := s.Update(ctx, revoked); err != nil {
		t.Fatalf("Update revoked: %v", err)
	}

	got, err := s.GetValidCandidates(ctx, "u1")
	if err != nil {
		t.Fatalf("GetValidCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != valid.ID {
		t.Fatalf("candidates = %v, want only the valid row", got)
	}
}

func TestMemoryStore_CandidatesNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := newRow("u1", time.Hour)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := newRow("u1", time.Hour)
	_ = s.Add(ctx, older)
	_ = s.Add(ctx, newer)

	got, _ := s.GetValidCandidates(ctx, "u1")
	if len(got) != 2 || got[0].ID != newer.ID {
		t.Errorf("candidates not newest-first")
	}
}

func TestMemoryStore_UpdateVersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	row := newRow("u1", time.Hour)
	if err := s.Add(ctx, row); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Two readers load the same version.
	first := *row
	second := *row

	first.Used = true
	if err := s.Update(ctx, &first); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("winner Version = %d, want 2", first.Version)
	}

	second.Revoked = true
	if err := s.Update(ctx, &second); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("second Update: err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_UpdateUnknownID(t *testing.T) {
	s := NewMemoryStore()
	row := newRow("u1", time.Hour)
	row.Version = 1
	if err := s.Update(context.Background(), row); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_InTxCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := newRow("u1", time.Hour)
	if err := s.Add(ctx, old); err != nil {
		t.Fatalf("Add: %v", err)
	}

	successor := newRow("u1", time.Hour)
	err := s.InTx(ctx, func(tx Store) error {
		old.Used = true
		if err := tx.Update(ctx, old); err != nil {
			return err
		}
		return tx.Add(ctx, successor)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	got, _ := s.GetValidCandidates(ctx, "u1")
	if len(got) != 1 || got[0].ID != successor.ID {
		t.Fatalf("after rotation want only successor, got %v", got)
	}
}

func TestMemoryStore_InTxRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := newRow("u1", time.Hour)
	if err := s.Add(ctx, old); err != nil {
		t.Fatalf("Add: %v", err)
	}

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Store) error {
		burned := *old
		burned.Used = true
		if err := tx.Update(ctx, &burned); err != nil {
			return err
		}
		if err := tx.Add(ctx, newRow("u1", time.Hour)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}

	// The burn and the successor must both have been discarded.
	got, _ := s.GetValidCandidates(ctx, "u1")
	if len(got) != 1 || got[0].ID != old.ID || got[0].Version != 1 {
		t.Fatalf("rollback left partial state: %+v", got)
	}
}

func TestMemoryStore_InTxStagedReads(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := newRow("u1", time.Hour)
	_ = s.Add(ctx, old)

	err := s.InTx(ctx, func(tx Store) error {
		old.Used = true
		if err := tx.Update(ctx, old); err != nil {
			return err
		}
		// The burned row must already be invisible within the transaction.
		got, err := tx.GetValidCandidates(ctx, "u1")
		if err != nil {
			return err
		}
		if len(got) != 0 {
			t.Errorf("staged burn not visible to tx reads: %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestMemoryStore_InTxCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	old := newRow("u1", time.Hour)
	_ = s.Add(ctx, old)

	err := s.InTx(ctx, func(tx Store) error {
		old.Used = true
		if err := tx.Update(ctx, old); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if err == nil {
		t.Fatal("InTx with cancelled context should not commit")
	}

	got, _ := s.GetValidCandidates(context.Background(), "u1")
	if len(got) != 1 {
		t.Fatalf("cancelled tx must roll back, got %v", got)
	}
}
