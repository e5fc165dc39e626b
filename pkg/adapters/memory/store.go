package memory

import (
	"context"
	"sync"

	"github.com/reveriehq/reverie/pkg/domain"
)

// Store implements ports.TreeStore in memory.
// Safe for concurrent use. Intended for tests and single-process setups.
type Store struct {
	mu     sync.RWMutex
	trees  map[string]*domain.DialogueTree
	byChar map[string]string // characterID -> treeID
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		trees:  make(map[string]*domain.DialogueTree),
		byChar: make(map[string]string),
	}
}

// Save persists a deep copy of the tree, so later mutations by the caller
// cannot leak into the stored record.
func (s *Store) Save(ctx context.Context, tree *domain.DialogueTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[tree.ID] = tree.Clone()
	s.byChar[tree.CharacterID] = tree.ID
	return nil
}

// Load retrieves a copy of the tree.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.DialogueTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.trees[treeID]
	if !ok {
		return nil, domain.ErrTreeNotFound
	}
	return tree.Clone(), nil
}

// FindByCharacter retrieves the character's tree.
func (s *Store) FindByCharacter(ctx context.Context, characterID string) (*domain.DialogueTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	treeID, ok := s.byChar[characterID]
	if !ok {
		return nil, domain.ErrTreeNotFound
	}
	tree, ok := s.trees[treeID]
	if !ok {
		return nil, domain.ErrTreeNotFound
	}
	return tree.Clone(), nil
}

// Delete removes the tree and its character index entry.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tree, ok := s.trees[treeID]; ok {
		delete(s.byChar, tree.CharacterID)
	}
	delete(s.trees, treeID)
	return nil
}

// List returns all stored tree IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.trees))
	for id := range s.trees {
		ids = append(ids, id)
	}
	return ids, nil
}
