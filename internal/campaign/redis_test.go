package campaign

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRedisStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		_, client := newTestRedis(t)
		return NewRedisStore(client)
	})
}

func TestRedisStoreLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)

	c, err := s.Create(ctx, New("Layout", []string{"Kobler", "Contextual"}, 12.5))
	require.NoError(t, err)

	assert.Equal(t, "Layout", mr.HGet(campaignKey(c.ID), "name"))
	assert.Equal(t, "12.5", mr.HGet(campaignKey(c.ID), "budget"))
	assert.Equal(t, "0", mr.HGet(campaignKey(c.ID), "spending"))

	members, err := mr.Members(keywordKey("Kobler"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, members)

	require.NoError(t, s.Ping(ctx))
}

func TestRedisStoreCorruptHash(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedisStore(client)

	mr.HSet(campaignKey(7), "name", "broken", "budget", "lots")

	_, err := s.Get(ctx, 7)
	assert.ErrorContains(t, err, "budget of campaign 7")
}
