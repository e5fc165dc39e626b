package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/ports"
)

// lockEntry holds the mutex and the reference count for one key.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes all dialogue-tree mutations per character. Trees are
// 1:1 with characters, and every mutating path locks the character key, so
// a background persist from one turn cannot race the tree lookup at the
// start of the next. Reads go straight to the store.
type Manager struct {
	store ports.TreeStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker // optional
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking on top of the in-process locks.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = locker }
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIDGenerator overrides node/tree ID generation. Tests use this for
// deterministic IDs.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a Manager over the given persistence store.
func NewManager(store ports.TreeStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock executes fn while holding the in-process lock for key, plus the
// distributed lock when one is configured.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// charLockKey is the serialization key for all mutations of one character's
// tree. CreateTree uses the same key, so first-turn creation and background
// writes contend on one lock.
func charLockKey(characterID string) string {
	return "char:" + characterID
}

// mutate loads the tree, applies fn, and saves the result under the owning
// character's lock. The initial unlocked load only resolves the character;
// the copy mutated is reloaded once the lock is held.
func (m *Manager) mutate(ctx context.Context, treeID string, fn func(*domain.DialogueTree) error) (*domain.DialogueTree, error) {
	probe, err := m.store.Load(ctx, treeID)
	if err != nil {
		return nil, err
	}

	var tree *domain.DialogueTree
	err = m.WithLock(ctx, charLockKey(probe.CharacterID), func(ctx context.Context) error {
		var err error
		tree, err = m.store.Load(ctx, treeID)
		if err != nil {
			return err
		}
		if err := fn(tree); err != nil {
			return err
		}
		return m.store.Save(ctx, tree)
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// CreateTree returns the character's tree, creating it on first interaction.
// Creating twice for one character yields the existing tree.
func (m *Manager) CreateTree(ctx context.Context, characterID string) (*domain.DialogueTree, error) {
	var tree *domain.DialogueTree
	err := m.WithLock(ctx, charLockKey(characterID), func(ctx context.Context) error {
		var err error
		tree, err = m.store.FindByCharacter(ctx, characterID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTreeNotFound) {
			return fmt.Errorf("failed to check for existing tree: %w", err)
		}

		tree = domain.NewTree(m.newID(), characterID)
		if err := m.store.Save(ctx, tree); err != nil {
			return fmt.Errorf("failed to initialize tree: %w", err)
		}
		return nil
	})
	return tree, err
}

// Tree retrieves a tree by ID. Reads are not serialized: the store hands
// out isolated copies, and a read racing a write sees one version or the
// other.
func (m *Manager) Tree(ctx context.Context, treeID string) (*domain.DialogueTree, error) {
	return m.store.Load(ctx, treeID)
}

// TreeForCharacter retrieves the character's tree.
func (m *Manager) TreeForCharacter(ctx context.Context, characterID string) (*domain.DialogueTree, error) {
	return m.store.FindByCharacter(ctx, characterID)
}

// NodeFields carries the turn content for AddNode and UpdateNode.
type NodeFields struct {
	UserInput         string
	AssistantResponse string
	FullResponse      string
	ThinkingContent   string
	ParsedContent     map[string]any
}

type addConfig struct {
	nodeID string
}

// AddOption configures AddNode.
type AddOption func(*addConfig)

// WithNodeID supplies an explicit node ID instead of a generated UUID. Used
// to correlate the persisted node with an in-flight streamed response ID.
func WithNodeID(id string) AddOption {
	return func(c *addConfig) { c.nodeID = id }
}

// AddNode appends one turn under parentID and advances the current pointer
// to it. Returns the new node's ID.
func (m *Manager) AddNode(ctx context.Context, treeID, parentID string, fields NodeFields, opts ...AddOption) (string, error) {
	cfg := addConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.nodeID == "" {
		cfg.nodeID = m.newID()
	}

	node := &domain.DialogueNode{
		ID:                cfg.nodeID,
		ParentID:          parentID,
		UserInput:         fields.UserInput,
		AssistantResponse: fields.AssistantResponse,
		FullResponse:      fields.FullResponse,
		ThinkingContent:   fields.ThinkingContent,
		ParsedContent:     fields.ParsedContent,
		CreatedAt:         time.Now().UTC(),
	}

	_, err := m.mutate(ctx, treeID, func(tree *domain.DialogueTree) error {
		return tree.AddChild(node)
	})
	if err != nil {
		return "", fmt.Errorf("add node: %w", err)
	}
	return node.ID, nil
}

// UpdateNode merges the non-zero fields into an existing node, e.g. to
// attach a post-hoc compressed summary.
func (m *Manager) UpdateNode(ctx context.Context, treeID, nodeID string, fields NodeFields) error {
	_, err := m.mutate(ctx, treeID, func(tree *domain.DialogueTree) error {
		node, ok := tree.Node(nodeID)
		if !ok {
			return domain.ErrNodeNotFound
		}
		if fields.UserInput != "" {
			node.UserInput = fields.UserInput
		}
		if fields.AssistantResponse != "" {
			node.AssistantResponse = fields.AssistantResponse
		}
		if fields.FullResponse != "" {
			node.FullResponse = fields.FullResponse
		}
		if fields.ThinkingContent != "" {
			node.ThinkingContent = fields.ThinkingContent
		}
		if len(fields.ParsedContent) > 0 {
			if node.ParsedContent == nil {
				node.ParsedContent = make(map[string]any, len(fields.ParsedContent))
			}
			for k, v := range fields.ParsedContent {
				node.ParsedContent[k] = v
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	return nil
}

// SwitchBranch repoints the current pointer. Sibling branches are untouched.
func (m *Manager) SwitchBranch(ctx context.Context, treeID, nodeID string) error {
	_, err := m.mutate(ctx, treeID, func(tree *domain.DialogueTree) error {
		return tree.SwitchBranch(nodeID)
	})
	if err != nil {
		return fmt.Errorf("switch branch: %w", err)
	}
	return nil
}

// DeleteNode removes the node and its entire descendant subtree, rewinding
// the current pointer to the node's parent when it pointed inside the
// removed set. Returns the updated tree.
func (m *Manager) DeleteNode(ctx context.Context, treeID, nodeID string) (*domain.DialogueTree, error) {
	tree, err := m.mutate(ctx, treeID, func(tree *domain.DialogueTree) error {
		return tree.DeleteSubtree(nodeID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete node: %w", err)
	}
	return tree, nil
}

// PathToNode returns the ordered root→node path, the linear view rendered
// as chat history and fed to the model.
func (m *Manager) PathToNode(ctx context.Context, treeID, nodeID string) ([]*domain.DialogueNode, error) {
	tree, err := m.Tree(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("path to node: %w", err)
	}
	path, err := tree.Path(nodeID)
	if err != nil {
		return nil, fmt.Errorf("path to node: %w", err)
	}
	return path, nil
}

// ChildNodes returns the direct children of parentID, used to present
// alternate-branch choices.
func (m *Manager) ChildNodes(ctx context.Context, treeID, parentID string) ([]*domain.DialogueNode, error) {
	tree, err := m.Tree(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("child nodes: %w", err)
	}
	children, err := tree.Children(parentID)
	if err != nil {
		return nil, fmt.Errorf("child nodes: %w", err)
	}
	return children, nil
}
