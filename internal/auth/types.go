package auth

import (
	"errors"
	"net/mail"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, spaces, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9 ._-]{1,64}$`)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsValidEmail checks that email is a bare RFC 5322 address.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// UserAgent names the client a token was issued to. Tokens are only valid
// for the agent they were issued for.
type UserAgent string

const (
	// AgentInternal is the hub's own apps and CLI.
	AgentInternal UserAgent = "internal"

	// AgentGoogleSmartHome is the voice-assistant fulfillment integration.
	AgentGoogleSmartHome UserAgent = "google-smart-home"
)

// IsValid reports whether a is a known agent.
func (a UserAgent) IsValid() bool {
	return a == AgentInternal || a == AgentGoogleSmartHome
}

// User represents an account that owns devices.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken is the stored record of an issued refresh token. Only its
// ID is persisted; the signed token itself is never stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserAgent UserAgent `json:"user_agent"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username or email already exists")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrAgentMismatch      = errors.New("token was issued to a different agent")
)
