package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry fronts a Repository with a read-through cache keyed by device ID.
// Every tunnel connection and every command looks its device up, so the
// cache keeps those paths off the database.
//
// All public methods are thread-safe. Returned devices are copies.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a device registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetDevice returns a device by ID, consulting the repository on a miss.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.Clone()
	r.cacheMu.Unlock()
	return d, nil
}

// ListByUser returns a user's devices from the repository and refreshes
// their cache entries.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	devices, err := r.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].Clone()
	}
	r.cacheMu.Unlock()
	return devices, nil
}

// CreateDevice assigns an ID if needed, validates and persists d.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.Clone()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "device_id", d.ID, "user_id", d.UserID, "type", d.Type)
	return nil
}

// DeleteDevice removes a device from the repository and the cache.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// Invalidate drops a cached entry so the next lookup hits the repository.
func (r *Registry) Invalidate(id string) {
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()
}

// CacheSize returns the number of cached devices.
func (r *Registry) CacheSize() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
