package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service implements account registration and the token lifecycle on top
// of a UserRepository, a TokenStore and a TokenIssuer.
type Service struct {
	users  UserRepository
	tokens TokenStore
	issuer *TokenIssuer
}

// NewService creates an auth service.
func NewService(users UserRepository, tokens TokenStore, issuer *TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens, issuer: issuer}
}

// Register creates a user account with a hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	switch {
	case !IsValidUsername(username):
		return nil, fmt.Errorf("%w: username must be 1-64 letters, digits, spaces, dots, hyphens or underscores", ErrInvalidInput)
	case !IsValidEmail(email):
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	case len(password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks email and password and issues a token pair for agent. The
// refresh token's ID is recorded in the token store.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, agent UserAgent) (*TokenPair, error) {
	if !agent.IsValid() {
		return nil, fmt.Errorf("%w: unknown agent %q", ErrInvalidInput, agent)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	access, _, err := s.issuer.IssueAccess(user.ID, agent)
	if err != nil {
		return nil, err
	}
	refresh, claims, err := s.issuer.IssueRefresh(user.ID, agent)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Add(ctx, &RefreshToken{
		ID:        claims.ID,
		UserID:    user.ID,
		UserAgent: agent,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		return nil, err
	}

	return s.pair(access, refresh), nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string, agent UserAgent) (*TokenPair, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if agent != "" && claims.Agent != agent {
		return nil, ErrAgentMismatch
	}

	ok, err := s.tokens.Exists(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenRevoked
	}

	access, _, err := s.issuer.IssueAccess(claims.UserID(), claims.Agent)
	if err != nil {
		return nil, err
	}
	return s.pair(access, ""), nil
}

// Logout revokes a refresh token. Revoking an already revoked token
// succeeds.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, claims.ID)
}

// LogoutAll revokes every refresh token of a user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// User returns the account with the given ID.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// Verify validates an access token and returns the user it was issued to.
// No storage is consulted.
func (s *Service) Verify(accessToken string) (string, error) {
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// VerifyClaims is Verify returning the full claims, for callers that also
// need the agent.
func (s *Service) VerifyClaims(accessToken string) (*Claims, error) {
	return s.issuer.ParseAccess(accessToken)
}

// PruneExpired deletes expired refresh token records.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

func (s *Service) pair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.issuer.AccessTTL().Seconds()),
	}
}
