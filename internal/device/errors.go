package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrOwnerNotFound is returned when the owning user does not exist.
	ErrOwnerNotFound = errors.New("device: owner not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	ErrInvalidName  = errors.New("device: invalid name")
	ErrInvalidType  = errors.New("device: invalid type")
	ErrInvalidTrait = errors.New("device: invalid trait")

	// ErrInvalidCredentials is returned by Authenticate for an unknown
	// device, a malformed ID or a wrong secret alike.
	ErrInvalidCredentials = errors.New("device: invalid credentials")
)
