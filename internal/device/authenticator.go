package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/houseflow/lighthouse/internal/auth"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// Lookup is the part of Registry the authenticator needs.
type Lookup interface {
	GetDevice(ctx context.Context, id string) (*Device, error)
}

// Authenticator checks device credentials presented when a device opens
// its tunnel.
type Authenticator struct {
	devices Lookup
}

// NewAuthenticator creates an authenticator backed by devices.
func NewAuthenticator(devices Lookup) *Authenticator {
	return &Authenticator{devices: devices}
}

// Authenticate verifies password against the stored secret hash for id and
// returns the canonical device ID. Unknown IDs, malformed IDs and wrong
// secrets all yield ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, id, password string) (tunnel.DeviceID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	canonical := parsed.String()

	d, err := a.devices.GetDevice(ctx, canonical)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up device: %w", err)
	}

	ok, err := auth.VerifyPassword(password, d.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verifying device secret: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return tunnel.DeviceID(canonical), nil
}
