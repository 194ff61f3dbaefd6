package device

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxRoomLength = 100
	maxTraits     = 16

	// secretBytes is the entropy of generated device secrets.
	secretBytes = 24
)

var (
	validTypes  map[Type]struct{}
	validTraits map[Trait]struct{}
)

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}

	validTraits = make(map[Trait]struct{}, len(AllTraits()))
	for _, t := range AllTraits() {
		validTraits[t] = struct{}{}
	}
}

// ValidateDevice returns the first validation failure found in d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("%w: id must be a UUID", ErrInvalidDevice)
	}
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if err := ValidateTraits(d.Traits); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.Room) > maxRoomLength {
		return fmt.Errorf("%w: room exceeds %d characters", ErrInvalidDevice, maxRoomLength)
	}
	if d.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateName checks a device name is non-blank and not too long.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateType checks t is a known device type.
func ValidateType(t Type) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// ValidateTraits checks every trait is known and none repeats.
func ValidateTraits(traits []Trait) error {
	if len(traits) > maxTraits {
		return fmt.Errorf("%w: at most %d traits", ErrInvalidTrait, maxTraits)
	}
	seen := make(map[Trait]struct{}, len(traits))
	for _, t := range traits {
		if _, ok := validTraits[t]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidTrait, t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidTrait, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// GenerateID returns a new device ID.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateSecret returns a random URL-safe device secret.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
