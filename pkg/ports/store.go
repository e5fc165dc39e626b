package ports

import (
	"context"

	"github.com/reveriehq/reverie/pkg/domain"
)

// TreeStore defines the interface for persisting dialogue trees.
//
// It is a whole-record read-modify-write surface with no compare-and-swap;
// callers must serialize mutations per tree (see pkg/dialogue.Manager).
type TreeStore interface {
	// Save persists the tree, overwriting any previous version.
	Save(ctx context.Context, tree *domain.DialogueTree) error

	// Load retrieves a tree by ID.
	// Returns domain.ErrTreeNotFound if it does not exist.
	Load(ctx context.Context, treeID string) (*domain.DialogueTree, error)

	// FindByCharacter retrieves the tree owned by a character. Trees are 1:1
	// with characters.
	// Returns domain.ErrTreeNotFound if the character has none.
	FindByCharacter(ctx context.Context, characterID string) (*domain.DialogueTree, error)

	// Delete removes the tree.
	Delete(ctx context.Context, treeID string) error

	// List returns the IDs of all stored trees.
	List(ctx context.Context) ([]string, error)
}
