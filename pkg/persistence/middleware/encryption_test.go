package middleware_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveriehq/reverie/pkg/adapters/memory"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/persistence/middleware"
	"github.com/reveriehq/reverie/pkg/ports"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func encryptedStore(t *testing.T, cfg middleware.EncryptionConfig) (ports.TreeStore, ports.TreeStore) {
	t.Helper()
	inner := memory.NewStore()
	return middleware.Chain(inner, middleware.NewEncryptionMiddleware(cfg)), inner
}

func seededTree() *domain.DialogueTree {
	tree := domain.NewTree("t1", "alice")
	_ = tree.AddChild(&domain.DialogueNode{
		ID:                "a",
		ParentID:          domain.RootNodeID,
		UserInput:         "a secret",
		AssistantResponse: "kept between us",
	})
	return tree
}

func TestEncryption_RoundTrip(t *testing.T) {
	store, _ := encryptedStore(t, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	ctx := context.Background()
	tree := seededTree()

	require.NoError(t, store.Save(ctx, tree))

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, tree.CurrentID, loaded.CurrentID)
	node, ok := loaded.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a secret", node.UserInput)

	byChar, err := store.FindByCharacter(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "t1", byChar.ID)
}

func TestEncryption_ContentNotStoredInClear(t *testing.T) {
	store, inner := encryptedStore(t, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, seededTree()))

	// The inner record keeps only the identifiers readable.
	raw, err := inner.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", raw.ID)
	assert.Equal(t, "alice", raw.CharacterID)
	assert.NotContains(t, raw.Nodes, "a")
	root, ok := raw.Node(domain.RootNodeID)
	require.True(t, ok)
	assert.NotEmpty(t, root.ParsedContent)
}

func TestEncryption_WrongKeyFails(t *testing.T) {
	store, inner := encryptedStore(t, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, seededTree()))

	reader := middleware.Chain(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(2),
	}))
	_, err := reader.Load(ctx, "t1")
	assert.ErrorContains(t, err, "failed to decrypt tree")
}

func TestEncryption_KeyRotation(t *testing.T) {
	oldStore, inner := encryptedStore(t, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	ctx := context.Background()
	require.NoError(t, oldStore.Save(ctx, seededTree()))

	// After rotation the old key is demoted to fallback; old records stay
	// readable and new writes use the new key.
	rotated := middleware.Chain(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    testKey(2),
		FallbackKeys: [][]byte{testKey(1)},
	}))

	loaded, err := rotated.Load(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, rotated.Save(ctx, loaded))

	// Once re-saved, the record no longer opens with the old key alone.
	oldOnly := middleware.Chain(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(1),
	}))
	_, err = oldOnly.Load(ctx, "t1")
	assert.Error(t, err)
}

func TestEncryption_PlainRecordFailsClosed(t *testing.T) {
	inner := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, inner.Save(ctx, seededTree()))

	store := middleware.Chain(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(1),
	}))
	_, err := store.Load(ctx, "t1")
	assert.ErrorContains(t, err, "missing its encrypted envelope")
}

func TestEncryption_BadKeyLengthPanics(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}

func TestEncryption_StoreContract(t *testing.T) {
	store, _ := encryptedStore(t, middleware.EncryptionConfig{ActiveKey: testKey(1)})
	ports.RunTreeStoreContract(t, store)
}
