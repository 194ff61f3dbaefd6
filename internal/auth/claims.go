package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens. The two are
// also signed with different keys.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by both token types.
type Claims struct {
	jwt.RegisteredClaims
	Type  TokenType `json:"typ"`
	Agent UserAgent `json:"agent"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

// TokenIssuer signs and verifies access and refresh tokens.
type TokenIssuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates an issuer. Non-positive TTLs select 10 minutes for
// access tokens and 7 days for refresh tokens.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = 10 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccess creates a signed access token for userID.
// Access tokens are validated by signature only (no DB hit).
func (i *TokenIssuer) IssueAccess(userID string, agent UserAgent) (string, *Claims, error) {
	return i.issue(TokenTypeAccess, i.accessKey, i.accessTTL, userID, agent)
}

// IssueRefresh creates a signed refresh token for userID. The token ID in
// the returned claims must be recorded in the TokenStore.
func (i *TokenIssuer) IssueRefresh(userID string, agent UserAgent) (string, *Claims, error) {
	return i.issue(TokenTypeRefresh, i.refreshKey, i.refreshTTL, userID, agent)
}

func (i *TokenIssuer) issue(typ TokenType, key []byte, ttl time.Duration, userID string, agent UserAgent) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Type:  typ,
		Agent: agent,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// ParseAccess validates an access token and returns its claims.
func (i *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return i.parse(token, TokenTypeAccess, i.accessKey)
}

// ParseRefresh validates a refresh token's signature and expiry. Whether it
// has been revoked is a TokenStore question.
func (i *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return i.parse(token, TokenTypeRefresh, i.refreshKey)
}

func (i *TokenIssuer) parse(tokenString string, want TokenType, key []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, want)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrTokenInvalid)
	}
	if !claims.Agent.IsValid() {
		return nil, fmt.Errorf("%w: unknown agent %q", ErrTokenInvalid, claims.Agent)
	}

	return claims, nil
}
