// Package device stores the hub's registered devices.
//
// A device belongs to one user, has a smart-home type and a list of
// traits, and authenticates its tunnel with a UUID and a secret. Only the
// Argon2 hash of the secret is stored; the plaintext is shown once, when
// the device is registered.
//
// The Registry caches devices in memory in front of the SQLite repository.
// The Authenticator checks tunnel credentials against it.
package device
