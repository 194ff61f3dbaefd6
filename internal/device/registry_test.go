package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo wraps a Repository and counts GetByID calls.
type countingRepo struct {
	Repository
	gets int
}

func (c *countingRepo) GetByID(ctx context.Context, id string) (*Device, error) {
	c.gets++
	return c.Repository.GetByID(ctx, id)
}

func TestRegistry_CachesLookups(t *testing.T) {
	repo := &countingRepo{Repository: NewSQLiteRepository(setupTestDB(t))}
	reg := NewRegistry(repo)
	ctx := context.Background()

	d := testDevice("usr-1", "Lamp")
	d.ID = ""
	require.NoError(t, reg.CreateDevice(ctx, d))
	require.NotEmpty(t, d.ID, "CreateDevice should assign an ID")

	reg.Invalidate(d.ID)
	for range 3 {
		got, err := reg.GetDevice(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lamp", got.Name)
	}
	assert.Equal(t, 1, repo.gets, "only the first lookup should reach the repository")

	got, err := reg.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	got.Traits[0] = TraitOpenClose
	again, err := reg.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, TraitOnOff, again.Traits[0], "cached entry must not be mutated through a returned copy")
}

func TestRegistry_CreateValidatesAndDeleteEvicts(t *testing.T) {
	reg := NewRegistry(NewSQLiteRepository(setupTestDB(t)))
	ctx := context.Background()

	bad := testDevice("usr-1", "")
	require.ErrorIs(t, reg.CreateDevice(ctx, bad), ErrInvalidName)

	d := testDevice("usr-1", "Fan")
	require.NoError(t, reg.CreateDevice(ctx, d))
	assert.Equal(t, 1, reg.CacheSize())

	list, err := reg.ListByUser(ctx, "usr-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, reg.DeleteDevice(ctx, d.ID))
	assert.Equal(t, 0, reg.CacheSize())

	_, err = reg.GetDevice(ctx, d.ID)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	assert.ErrorIs(t, reg.DeleteDevice(ctx, d.ID), ErrDeviceNotFound)
}
