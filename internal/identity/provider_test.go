package identity_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylinderhub/cylinderhub/internal/identity"
	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
)

func newProvider(t *testing.T) (*identity.Local, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return identity.NewLocal(kv.NewRedis(client, ""), "console-1", nil), mr
}

func TestLocalSignInPersistsAndNotifies(t *testing.T) {
	provider, mr := newProvider(t)
	ctx := context.Background()

	var seen []*identity.Identity
	cancel := provider.Subscribe(func(ident *identity.Identity) { seen = append(seen, ident) })

	require.NoError(t, provider.SignIn(ctx, identity.Identity{UID: "u-1", Email: "ops@cylinderhub.test"}))
	assert.True(t, mr.Exists("identity:console-1"))

	current, err := provider.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "u-1", current.UID)

	require.NoError(t, provider.SignOut(ctx))
	current, err = provider.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	cancel()
	cancel()
	require.NoError(t, provider.SignIn(ctx, identity.Identity{UID: "u-2"}))

	require.Len(t, seen, 2)
	assert.Equal(t, "u-1", seen[0].UID)
	assert.Nil(t, seen[1])
}

func TestLocalDropsCorruptIdentity(t *testing.T) {
	provider, mr := newProvider(t)
	require.NoError(t, mr.Set("identity:console-1", "{not json"))

	current, err := provider.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.False(t, mr.Exists("identity:console-1"))
}

func TestLocalRejectsEmptyUID(t *testing.T) {
	provider, _ := newProvider(t)
	require.Error(t, provider.SignIn(context.Background(), identity.Identity{}))
}
