package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	dirdomain "devicehub/backend/internal/directory/domain"
	"devicehub/backend/internal/session"
	"devicehub/backend/internal/token"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest carries the raw refresh secret plus the (possibly expired)
// access token whose subject narrows the candidate set.
type refreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	RefreshToken         string    `json:"refreshToken"`
	TokenType            string    `json:"tokenType"`
	PrincipalID          string    `json:"principalId"`
	Email                string    `json:"email"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	Roles                []string  `json:"roles"`
}

type logoutResponse struct {
	Revoked bool `json:"revoked"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "email and password are required")
		return
	}

	res, err := s.svc.Register(r.Context(), dirdomain.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "email and password are required")
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), "login:"+req.Email+":"+clientIP(r))
		if err != nil {
			// Fail open: a limiter outage must not lock everyone out.
			s.log.Error("login limiter failed", "error", err)
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, errCodeTooManyAttempts, "too many login attempts; try again later")
			return
		}
	}

	res, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(res))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	req, claims, ok := s.decodeRefreshClaims(w, r)
	if !ok {
		return
	}

	res, err := s.svc.Refresh(r.Context(), req.RefreshToken, claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(res))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	req, claims, ok := s.decodeRefreshClaims(w, r)
	if !ok {
		return
	}

	revoked, err := s.svc.Revoke(r.Context(), req.RefreshToken, claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutResponse{Revoked: revoked})
}

// decodeRefreshClaims reads a refresh-shaped request body and verifies its
// access token with expiry validation off: an expired token still proves
// which principal the secret claims to belong to, which is all the refresh
// and logout flows need from it.
func (s *Server) decodeRefreshClaims(w http.ResponseWriter, r *http.Request) (*refreshRequest, *token.Claims, bool) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return nil, nil, false
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "accessToken and refreshToken are required")
		return nil, nil, false
	}

	claims, err := s.codec.Verify(req.AccessToken, token.VerifyOptions{ValidateExpiry: false})
	if err != nil {
		writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid or expired session")
		return nil, nil, false
	}
	if claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid or expired session")
		return nil, nil, false
	}
	return &req, claims, true
}

// clientIP returns the request's source IP. RemoteAddr carries an ephemeral
// port that changes per connection, so it must be stripped or every attempt
// would get its own limiter window.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func toSessionResponse(res *session.Result) sessionResponse {
	return sessionResponse{
		AccessToken:          res.AccessToken,
		AccessTokenExpiresAt: res.AccessExpiresAt,
		RefreshToken:         res.RefreshToken,
		TokenType:            "Bearer",
		PrincipalID:          res.PrincipalID,
		Email:                res.Email,
		FirstName:            res.FirstName,
		LastName:             res.LastName,
		Roles:                res.Roles,
	}
}
