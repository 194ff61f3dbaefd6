package api

import (
	"errors"
	"net/http"

	"github.com/houseflow/lighthouse/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Agent    auth.UserAgent `json:"agent"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string         `json:"refresh_token"`
	Agent        auth.UserAgent `json:"agent,omitempty"`
}

// handleRegister creates a user account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, auth.ErrUserExists):
			writeConflict(w, "username or email already registered")
		default:
			s.logger.Error("registering user", "error", err)
			writeInternalError(w, "failed to register user")
		}
		return
	}

	s.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// handleLogin exchanges email and password for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Agent == "" {
		req.Agent = auth.AgentInternal
	}

	pair, err := s.auth.Login(r.Context(), req.Email, req.Password, req.Agent)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid credentials")
		default:
			s.logger.Error("login failed", "error", err)
			writeInternalError(w, "failed to log in")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh issues a new access token for a live refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, req.Agent)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenInvalid),
			errors.Is(err, auth.ErrTokenRevoked),
			errors.Is(err, auth.ErrAgentMismatch):
			writeUnauthorized(w, err.Error())
		default:
			s.logger.Error("refreshing token", "error", err)
			writeInternalError(w, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes a refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.logger.Error("logout failed", "error", err)
		writeInternalError(w, "failed to log out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.User(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.logger.Error("loading current user", "error", err)
		writeInternalError(w, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"agent": claimsFromContext(r.Context()).Agent,
	})
}

// handleLogoutAll revokes every refresh token of the authenticated user.
// Access tokens already issued stay valid until they expire.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.LogoutAll(r.Context(), userIDFromContext(r.Context())); err != nil {
		s.logger.Error("revoking sessions", "error", err)
		writeInternalError(w, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
