// Package chat is the orchestration layer behind the chat API: it feeds the
// workflow engine for new turns and drives the tree operations behind edit,
// regenerate and history navigation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/nodes"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// ErrNothingToRegenerate is returned when the current pointer is on the root
// and there is no turn to redo.
var ErrNothingToRegenerate = errors.New("nothing to regenerate")

// TurnResult is the caller-visible outcome of one chat turn. NodeID is
// assigned before the run so the response can be correlated with the node
// the background band persists.
type TurnResult struct {
	TreeID            string         `json:"tree_id"`
	NodeID            string         `json:"node_id"`
	AssistantResponse string         `json:"assistant_response"`
	ThinkingContent   string         `json:"thinking_content,omitempty"`
	ParsedContent     map[string]any `json:"parsed_content,omitempty"`
}

// Service runs chat turns through the workflow engine.
type Service struct {
	engine *workflow.Engine
	trees  *dialogue.Manager
	logger *slog.Logger
	newID  func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator overrides response node ID generation, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates the chat orchestration layer.
func NewService(engine *workflow.Engine, trees *dialogue.Manager, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		trees:  trees,
		logger: logging.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Turn runs one new turn for a character. The reply is returned as soon as
// the exit node completes; persistence and summarization continue in the
// background under the same per-character serialization.
func (s *Service) Turn(ctx context.Context, characterID, userInput string) (*TurnResult, error) {
	responseNodeID := s.newID()
	run, err := s.engine.Execute(ctx, map[string]any{
		nodes.FieldCharacterID:    characterID,
		nodes.FieldUserInput:      userInput,
		nodes.FieldResponseNodeID: responseNodeID,
	})
	if err != nil {
		s.logger.Error("turn failed",
			"character_id", characterID,
			"workflow_id", run.WorkflowID,
			"err", err,
		)
		return nil, err
	}

	tree, err := s.trees.TreeForCharacter(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("turn completed but tree lookup failed: %w", err)
	}

	res := &TurnResult{
		TreeID: tree.ID,
		NodeID: responseNodeID,
	}
	if v, ok := run.OutputData[nodes.FieldAssistant].(string); ok {
		res.AssistantResponse = v
	}
	if v, ok := run.OutputData[nodes.FieldThinking].(string); ok {
		res.ThinkingContent = v
	}
	if v, ok := run.OutputData[nodes.FieldParsedContent].(map[string]any); ok {
		res.ParsedContent = v
	}
	return res, nil
}

// Regenerate redoes the latest turn: the current node is cascade-deleted
// (which rewinds the pointer to its parent) and a fresh run is started from
// the same user input.
func (s *Service) Regenerate(ctx context.Context, characterID string) (*TurnResult, error) {
	tree, err := s.trees.TreeForCharacter(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}
	if tree.CurrentID == domain.RootNodeID {
		return nil, ErrNothingToRegenerate
	}
	current, ok := tree.Node(tree.CurrentID)
	if !ok {
		return nil, fmt.Errorf("regenerate: %w", domain.ErrNodeNotFound)
	}
	userInput := current.UserInput

	if _, err := s.trees.DeleteNode(ctx, tree.ID, current.ID); err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}
	return s.Turn(ctx, characterID, userInput)
}
