package ports

import (
	"context"
	"testing"
	"time"

	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTreeStoreContract runs a suite of tests verifying that a TreeStore
// implementation adheres to the interface contract. Every adapter test
// (memory, redis, middleware-wrapped) runs this same suite.
func RunTreeStoreContract(t *testing.T, store TreeStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		tree := domain.NewTree("tree-"+suffix, "char-"+suffix)
		err := tree.AddChild(&domain.DialogueNode{
			ID:                "n1-" + suffix,
			ParentID:          domain.RootNodeID,
			UserInput:         "hi",
			AssistantResponse: "hello!",
			ParsedContent:     map[string]any{"mood": "cheerful"},
		})
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, tree))

		loaded, err := store.Load(ctx, tree.ID)
		require.NoError(t, err)
		assert.Equal(t, tree.ID, loaded.ID)
		assert.Equal(t, tree.CharacterID, loaded.CharacterID)
		assert.Equal(t, tree.CurrentID, loaded.CurrentID)
		require.Contains(t, loaded.Nodes, "n1-"+suffix)
		assert.Equal(t, "hello!", loaded.Nodes["n1-"+suffix].AssistantResponse)
		require.Contains(t, loaded.Nodes, domain.RootNodeID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	})

	t.Run("FindByCharacter", func(t *testing.T) {
		tree := domain.NewTree("tree-find-"+suffix, "char-find-"+suffix)
		require.NoError(t, store.Save(ctx, tree))

		found, err := store.FindByCharacter(ctx, tree.CharacterID)
		require.NoError(t, err)
		assert.Equal(t, tree.ID, found.ID)

		_, err = store.FindByCharacter(ctx, "nobody-"+suffix)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		tree := domain.NewTree("tree-ow-"+suffix, "char-ow-"+suffix)
		require.NoError(t, store.Save(ctx, tree))

		require.NoError(t, tree.AddChild(&domain.DialogueNode{
			ID: "n2-" + suffix, ParentID: domain.RootNodeID, UserInput: "again",
		}))
		require.NoError(t, store.Save(ctx, tree))

		loaded, err := store.Load(ctx, tree.ID)
		require.NoError(t, err)
		assert.Equal(t, "n2-"+suffix, loaded.CurrentID)
		assert.Len(t, loaded.Nodes, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		tree := domain.NewTree("tree-del-"+suffix, "char-del-"+suffix)
		require.NoError(t, store.Save(ctx, tree))

		require.NoError(t, store.Delete(ctx, tree.ID))

		_, err := store.Load(ctx, tree.ID)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
		_, err = store.FindByCharacter(ctx, tree.CharacterID)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	})

	t.Run("List", func(t *testing.T) {
		t1 := domain.NewTree("tree-l1-"+suffix, "char-l1-"+suffix)
		t2 := domain.NewTree("tree-l2-"+suffix, "char-l2-"+suffix)
		require.NoError(t, store.Save(ctx, t1))
		require.NoError(t, store.Save(ctx, t2))
		defer func() {
			_ = store.Delete(ctx, t1.ID)
			_ = store.Delete(ctx, t2.ID)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, t1.ID)
		assert.Contains(t, ids, t2.ID)
	})

	t.Run("Isolation", func(t *testing.T) {
		// Mutating a loaded copy must not leak into the stored record.
		tree := domain.NewTree("tree-iso-"+suffix, "char-iso-"+suffix)
		require.NoError(t, store.Save(ctx, tree))

		loaded, err := store.Load(ctx, tree.ID)
		require.NoError(t, err)
		loaded.CurrentID = "tampered"
		loaded.Nodes["rogue"] = &domain.DialogueNode{ID: "rogue", ParentID: domain.RootNodeID}

		reloaded, err := store.Load(ctx, tree.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RootNodeID, reloaded.CurrentID)
		assert.NotContains(t, reloaded.Nodes, "rogue")
	})
}
