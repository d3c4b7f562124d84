package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/models"
)

func newTestCache(t *testing.T) (*ProfileCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewProfileCacheWithClient(client, time.Minute), srv
}

func TestProfileCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, []models.Profile{
		{ID: "u1", Role: models.RoleDoctor, FirstName: "Greg", LastName: "House"},
	}))

	found, missing, err := c.GetMany(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, missing)
	assert.Equal(t, "Greg", found["u1"].FirstName)
}

func TestProfileCacheExpires(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, []models.Profile{{ID: "u1", Role: models.RolePatient}}))
	srv.FastForward(2 * time.Minute)

	found, missing, err := c.GetMany(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, []string{"u1"}, missing)
}

func TestProfileCacheCorruptEntryIsMiss(t *testing.T) {
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set(profileKey("u1"), "not-json"))

	found, missing, err := c.GetMany(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, []string{"u1"}, missing)
}

func TestNewProfileCacheRejectsEmptyURL(t *testing.T) {
	_, err := NewProfileCache(context.Background(), "", time.Minute)
	require.Error(t, err)
}
