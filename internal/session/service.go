// Package session implements the session and token lifecycle: credential
// verification, access-token issuance, and refresh-token rotation under
// concurrent use, replay, and revocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dirdomain "devicehub/backend/internal/directory/domain"
	rtdomain "devicehub/backend/internal/refreshtoken/domain"
	rtrepo "devicehub/backend/internal/refreshtoken/repository"
	"devicehub/backend/internal/security"
	"devicehub/backend/internal/token"
)

// Directory is the external user directory as the session service needs it.
// Implementations live in internal/directory/repository.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*dirdomain.Principal, error)
	FindByID(ctx context.Context, id string) (*dirdomain.Principal, error)
	VerifyCredential(ctx context.Context, p *dirdomain.Principal, secret string) (bool, error)
	CreatePrincipal(ctx context.Context, profile dirdomain.Profile, secret string) (*dirdomain.Principal, error)
	GetRoles(ctx context.Context, p *dirdomain.Principal) ([]string, error)
}

// Result is the outcome of Register, Login, and Refresh. RefreshToken is the
// raw secret, surfaced to the caller exactly this once.
type Result struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	PrincipalID     string
	Email           string
	FirstName       string
	LastName        string
	Roles           []string
}

// Service orchestrates the token lifecycle. Stateless per call; all shared
// state lives in the refresh-token store, so concurrency safety rests on the
// store's compare-and-set semantics.
type Service struct {
	dir        Directory
	store      rtrepo.Store
	codec      *token.Codec
	hasher     *security.RefreshHasher
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *slog.Logger
	metrics    *Metrics
}

// New returns a Service with the given dependencies. logger may be nil
// (falls back to slog.Default); metrics may be nil (disables recording).
func New(
	dir Directory,
	store rtrepo.Store,
	codec *token.Codec,
	hasher *security.RefreshHasher,
	accessTTL, refreshTTL time.Duration,
	logger *slog.Logger,
	metrics *Metrics,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dir:        dir,
		store:      store,
		codec:      codec,
		hasher:     hasher,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        logger,
		metrics:    metrics,
	}
}

// Register creates a new principal in the directory and issues its first
// session. Returns ErrDuplicateIdentity when the email is taken and
// ErrDirectory when principal creation fails downstream.
func (s *Service) Register(ctx context.Context, profile dirdomain.Profile, secret string) (result *Result, err error) {
	defer func() { s.metrics.recordRegistration(ctx, err) }()

	_, err = s.dir.FindByEmail(ctx, profile.Email)
	if err == nil {
		return nil, ErrDuplicateIdentity
	}
	if !errors.Is(err, dirdomain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	p, err := s.dir.CreatePrincipal(ctx, profile, secret)
	if err != nil {
		if errors.Is(err, dirdomain.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	err = s.store.InTx(ctx, func(tx rtrepo.Store) error {
		var txErr error
		result, txErr = s.issueTokens(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	s.log.Info("principal registered", "principal_id", p.ID)
	return result, nil
}

// Login verifies the credential against the directory and issues a session.
// Unknown email and wrong password collapse to ErrInvalidCredential so the
// caller cannot enumerate accounts; the cause is logged here instead.
func (s *Service) Login(ctx context.Context, email, secret string) (result *Result, err error) {
	defer func() { s.metrics.recordLogin(ctx, err) }()

	p, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, dirdomain.ErrNotFound) {
			s.log.Warn("login failed", "reason", "unknown email", "email", email)
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	ok, err := s.dir.VerifyCredential(ctx, p, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}
	if !ok {
		s.log.Warn("login failed", "reason", "wrong password", "principal_id", p.ID)
		return nil, ErrInvalidCredential
	}
	if !p.Active {
		s.log.Warn("login failed", "reason", "account inactive", "principal_id", p.ID)
		return nil, ErrAccountInactive
	}

	err = s.store.InTx(ctx, func(tx rtrepo.Store) error {
		var txErr error
		result, txErr = s.issueTokens(ctx, tx, p)
		return txErr
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	s.log.Info("login succeeded", "principal_id", p.ID)
	return result, nil
}

// Refresh consumes a raw refresh secret and rotates it into a successor.
// claimedUserID narrows the candidate set before hash verification; it comes
// from a signature-valid (possibly expired) access token at the transport
// layer. The matched token is burned atomically with the creation of its
// successor; losing a concurrent race surfaces as
// ErrConcurrentRefreshConflict and the caller must log in again or retry.
func (s *Service) Refresh(ctx context.Context, rawSecret, claimedUserID string) (result *Result, err error) {
	defer func() { s.metrics.recordRefresh(ctx, err) }()

	matched, err := s.matchCandidate(ctx, rawSecret, claimedUserID)
	if err != nil {
		return nil, err
	}

	// opErr carries business failures that must still commit the burn:
	// a principal deleted or deactivated since issuance leaves the matched
	// token used and revoked even though the call fails.
	var opErr error
	err = s.store.InTx(ctx, func(tx rtrepo.Store) error {
		matched.Used = true
		if txErr := tx.Update(ctx, matched); txErr != nil {
			return txErr
		}

		p, txErr := s.dir.FindByID(ctx, claimedUserID)
		if txErr != nil {
			if errors.Is(txErr, dirdomain.ErrNotFound) {
				s.log.Warn("refresh for deleted principal", "principal_id", claimedUserID)
				matched.Revoked = true
				if revokeErr := tx.Update(ctx, matched); revokeErr != nil {
					return revokeErr
				}
				opErr = ErrPrincipalNotFound
				return nil
			}
			return fmt.Errorf("%w: %v", ErrDirectory, txErr)
		}
		if !p.Active {
			s.log.Warn("refresh for inactive principal", "principal_id", p.ID)
			matched.Revoked = true
			if revokeErr := tx.Update(ctx, matched); revokeErr != nil {
				return revokeErr
			}
			opErr = ErrAccountInactive
			return nil
		}

		result, txErr = s.issueTokens(ctx, tx, p)
		return txErr
	})
	if err != nil {
		if errors.Is(err, rtrepo.ErrVersionConflict) {
			s.metrics.recordRefreshConflict(ctx)
			s.log.Warn("refresh lost concurrent rotation", "token_id", matched.ID)
			return nil, ErrConcurrentRefreshConflict
		}
		return nil, s.mapTxErr(err)
	}
	if opErr != nil {
		return nil, opErr
	}
	s.log.Info("session refreshed", "principal_id", claimedUserID, "rotated_token_id", matched.ID)
	return result, nil
}

// Revoke invalidates the session holding rawSecret. Returns false when no
// currently valid token matches, including tokens already used, revoked, or
// expired — revocation is idempotent, not an error.
func (s *Service) Revoke(ctx context.Context, rawSecret, userID string) (bool, error) {
	matched, err := s.matchCandidate(ctx, rawSecret, userID)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredSession) {
			s.metrics.recordRevocation(ctx, false)
			return false, nil
		}
		return false, err
	}

	err = s.store.InTx(ctx, func(tx rtrepo.Store) error {
		matched.Revoked = true
		return tx.Update(ctx, matched)
	})
	if err != nil {
		if errors.Is(err, rtrepo.ErrVersionConflict) {
			// Someone consumed the row first; for the caller that is
			// indistinguishable from not found.
			s.metrics.recordRevocation(ctx, false)
			return false, nil
		}
		return false, s.mapTxErr(err)
	}
	s.metrics.recordRevocation(ctx, true)
	s.log.Info("session revoked", "principal_id", userID, "token_id", matched.ID)
	return true, nil
}

// matchCandidate loads the user's valid rows and finds the one whose hash
// verifies against rawSecret. Wrong user and no sessions produce the same
// ErrInvalidOrExpiredSession.
func (s *Service) matchCandidate(ctx context.Context, rawSecret, userID string) (*rtdomain.RefreshToken, error) {
	if rawSecret == "" || userID == "" {
		return nil, ErrInvalidOrExpiredSession
	}

	candidates, err := s.store.GetValidCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, c := range candidates {
		ok, verr := s.hasher.Verify(c.TokenHash, rawSecret)
		if verr != nil {
			// A corrupt stored hash must not mask a match elsewhere.
			s.log.Error("unreadable refresh token hash", "token_id", c.ID, "error", verr)
			continue
		}
		if ok {
			return c, nil
		}
	}
	s.log.Warn("no matching refresh token", "principal_id", userID, "candidates", len(candidates))
	return nil, ErrInvalidOrExpiredSession
}

// issueTokens is the shared issuance path: resolve roles, sign an access
// token, and persist a fresh hashed refresh token through the given store
// handle so it joins the caller's unit of work.
func (s *Service) issueTokens(ctx context.Context, store rtrepo.Store, p *dirdomain.Principal) (*Result, error) {
	roles, err := s.dir.GetRoles(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	access, accessExp, err := s.codec.Issue(token.Identity{
		Subject:    p.ID,
		Email:      p.Email,
		GivenName:  p.FirstName,
		FamilyName: p.LastName,
		Roles:      roles,
	}, s.accessTTL)
	if err != nil {
		return nil, err
	}

	rawSecret, err := security.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(rawSecret)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := &rtdomain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    p.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := store.Add(ctx, row); err != nil {
		return nil, err
	}

	return &Result{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		RefreshToken:    rawSecret,
		PrincipalID:     p.ID,
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Roles:           roles,
	}, nil
}

// mapTxErr classifies unit-of-work failures. Directory failures keep their
// sentinel; everything else from the store is a persistence failure the
// caller may retry at the transport level.
func (s *Service) mapTxErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDirectory):
		return err
	case errors.Is(err, ErrPersistence):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}
