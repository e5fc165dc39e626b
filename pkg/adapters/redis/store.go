package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reveriehq/reverie/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.TreeStore using Redis. One JSON document per tree,
// a plain key per character for the 1:1 character index, and a set for
// listing. Trees never expire: conversation history is durable.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for trees.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "reverie:tree:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(treeID string) string {
	return s.prefix + treeID
}

func (s *Store) charKey(characterID string) string {
	return s.prefix + "char:" + characterID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the tree and its character index entry atomically.
func (s *Store) Save(ctx context.Context, tree *domain.DialogueTree) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(tree.ID), data, 0)
	pipe.Set(ctx, s.charKey(tree.CharacterID), tree.ID, 0)
	pipe.SAdd(ctx, s.indexKey(), tree.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the tree from Redis.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.DialogueTree, error) {
	val, err := s.client.Get(ctx, s.key(treeID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrTreeNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var tree domain.DialogueTree
	if err := json.Unmarshal([]byte(val), &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %w", err)
	}
	return &tree, nil
}

// FindByCharacter resolves the character index, then loads the tree.
func (s *Store) FindByCharacter(ctx context.Context, characterID string) (*domain.DialogueTree, error) {
	treeID, err := s.client.Get(ctx, s.charKey(characterID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrTreeNotFound
		}
		return nil, fmt.Errorf("failed to resolve character index: %w", err)
	}
	return s.Load(ctx, treeID)
}

// Delete removes the tree, its character index entry, and its listing entry.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	// Load first so we can clean up the character index. A miss is fine: the
	// delete is then a no-op on the data key.
	tree, err := s.Load(ctx, treeID)
	if err != nil && err != domain.ErrTreeNotFound {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(treeID))
	pipe.SRem(ctx, s.indexKey(), treeID)
	if tree != nil {
		pipe.Del(ctx, s.charKey(tree.CharacterID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns all stored tree IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
