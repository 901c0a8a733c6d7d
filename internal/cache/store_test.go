package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewStore(rdb)
}

func TestStore_Aside(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: 1, Name: "first"}
			return nil
		}
	}

	var a cachedThing
	require.NoError(t, store.Aside(ctx, PostKey(1), &a, PostTTL, fetch(&a)))
	assert.Equal(t, "first", a.Name)
	assert.True(t, mr.Exists("post:1"))

	var b cachedThing
	require.NoError(t, store.Aside(ctx, PostKey(1), &b, PostTTL, fetch(&b)))
	assert.Equal(t, "first", b.Name)
	assert.Equal(t, 1, calls)

	store.InvalidatePost(ctx, 1)
	assert.False(t, mr.Exists("post:1"))

	var c cachedThing
	require.NoError(t, store.Aside(ctx, PostKey(1), &c, PostTTL, fetch(&c)))
	assert.Equal(t, 2, calls)
}

func TestStore_AsideFetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	boom := errors.New("db down")
	var dest cachedThing
	err := store.Aside(ctx, UserKey(5), &dest, UserTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("user:5"))
}

func TestStore_NilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	var nilClient *redis.Client
	store := NewStore(nilClient)
	assert.False(t, store.Enabled())

	calls := 0
	var dest cachedThing
	require.NoError(t, store.Aside(ctx, "k", &dest, time.Minute, func() error { calls++; return nil }))
	require.NoError(t, store.Aside(ctx, "k", &dest, time.Minute, func() error { calls++; return nil }))
	assert.Equal(t, 2, calls)

	revoked, err := store.IsRevoked(ctx, "jti")
	assert.NoError(t, err)
	assert.False(t, revoked)
	assert.ErrorIs(t, store.RevokeToken(ctx, "jti", time.Minute), ErrUnavailable)
	store.InvalidateUser(ctx, 1)
}

func TestStore_CategoryInvalidationClearsLists(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	require.NoError(t, store.SetJSON(ctx, CategoriesActive, []cachedThing{{ID: 1}}, CategoryTTL))
	require.NoError(t, store.SetJSON(ctx, CategoriesAll, []cachedThing{{ID: 1}}, CategoryTTL))
	require.NoError(t, store.SetJSON(ctx, CategoryKey(1), cachedThing{ID: 1}, CategoryTTL))

	store.InvalidateCategory(ctx, 1)
	assert.False(t, mr.Exists(CategoriesActive))
	assert.False(t, mr.Exists(CategoriesAll))
	assert.False(t, mr.Exists("category:1"))
}
