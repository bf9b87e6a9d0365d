package session

import "errors"

// Sentinel errors for the session service; the HTTP layer maps them to status
// codes. Credential and session failures deliberately collapse several
// underlying causes so callers cannot enumerate accounts or sessions; the
// detail is logged server-side only.
var (
	ErrInvalidCredential         = errors.New("session: invalid credentials")
	ErrAccountInactive           = errors.New("session: account inactive")
	ErrDuplicateIdentity         = errors.New("session: identity already registered")
	ErrInvalidOrExpiredSession   = errors.New("session: invalid or expired session")
	ErrConcurrentRefreshConflict = errors.New("session: concurrent refresh conflict")
	ErrPrincipalNotFound         = errors.New("session: principal no longer exists")
	ErrPersistence               = errors.New("session: persistence failure")
	ErrDirectory                 = errors.New("session: directory failure")
)
