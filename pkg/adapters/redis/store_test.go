package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveriehq/reverie/pkg/adapters/redis"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/ports"
)

func newTestClient(t *testing.T) *backend.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)
	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestRedisStore_Contract(t *testing.T) {
	store := redis.NewFromClient(newTestClient(t))
	ports.RunTreeStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := redis.NewFromClient(client, redis.WithPrefix("a:"))
	b := redis.NewFromClient(client, redis.WithPrefix("b:"))

	tree := domain.NewTree("tree-1", "char-1")
	require.NoError(t, a.Save(ctx, tree))

	_, err := b.Load(ctx, "tree-1")
	assert.ErrorIs(t, err, domain.ErrTreeNotFound, "prefixes must isolate stores")

	loaded, err := a.Load(ctx, "tree-1")
	require.NoError(t, err)
	assert.Equal(t, "char-1", loaded.CharacterID)
}

func TestRedisStore_CharacterIndexSurvivesOverwrite(t *testing.T) {
	store := redis.NewFromClient(newTestClient(t))
	ctx := context.Background()

	tree := domain.NewTree("tree-2", "char-2")
	require.NoError(t, store.Save(ctx, tree))

	require.NoError(t, tree.AddChild(&domain.DialogueNode{
		ID: "n1", ParentID: domain.RootNodeID, UserInput: "hi",
	}))
	require.NoError(t, store.Save(ctx, tree))

	found, err := store.FindByCharacter(ctx, "char-2")
	require.NoError(t, err)
	assert.Equal(t, "n1", found.CurrentID)
}
