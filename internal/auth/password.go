package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for new hashes.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length
)

// ErrInvalidHash is returned when a stored hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// HashPassword hashes a plaintext password using Argon2id and returns it
// in PHC string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// Device secrets are hashed the same way as user passwords.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks a plaintext password against a PHC hash string.
//
// Both argon2id and argon2i hashes are accepted so credentials provisioned
// by older tooling keep working.
func VerifyPassword(password, encodedHash string) (bool, error) {
	phc, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	keyLen := uint32(len(phc.hash)) //nolint:gosec // G115: hash length always fits uint32
	var candidate []byte
	switch phc.variant {
	case "argon2id":
		candidate = argon2.IDKey([]byte(password), phc.salt, phc.time, phc.memory, phc.threads, keyLen)
	default:
		candidate = argon2.Key([]byte(password), phc.salt, phc.time, phc.memory, phc.threads, keyLen)
	}

	return subtle.ConstantTimeCompare(phc.hash, candidate) == 1, nil
}

type phcHash struct {
	variant string
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	hash    []byte
}

// decodePHC parses an Argon2 PHC string into its components.
func decodePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, fmt.Errorf("%w: expected 6 fields", ErrInvalidHash)
	}

	phc := &phcHash{variant: parts[1]}
	if phc.variant != "argon2id" && phc.variant != "argon2i" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, phc.variant)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: parsing version: %w", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &phc.memory, &phc.time, &phc.threads); err != nil {
		return nil, fmt.Errorf("%w: parsing parameters: %w", ErrInvalidHash, err)
	}

	var err error
	if phc.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: decoding salt: %w", ErrInvalidHash, err)
	}
	if phc.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: decoding hash: %w", ErrInvalidHash, err)
	}
	if len(phc.hash) == 0 {
		return nil, fmt.Errorf("%w: empty hash", ErrInvalidHash)
	}

	return phc, nil
}
