package nodes

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/workflow"
)

type historyOptions struct {
	// MaxTurns bounds the context window. 0 means unlimited.
	MaxTurns int `mapstructure:"max_turns"`
}

// history reconstructs the linear conversation path from the root to the
// branch point and renders it as a chat transcript, ending with the pending
// user input. The pending input is not in the tree yet; persistence happens
// after the reply.
type history struct {
	deps Deps
	opts historyOptions
}

func newHistory(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		var opts historyOptions
		if err := mapstructure.Decode(cfg.InitParams, &opts); err != nil {
			return nil, fmt.Errorf("history node %s: bad init params: %w", cfg.ID, err)
		}
		if opts.MaxTurns < 0 {
			return nil, fmt.Errorf("history node %s: max_turns must be >= 0", cfg.ID)
		}
		return &history{deps: deps, opts: opts}, nil
	}
}

func (n *history) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	treeID, err := stringField(input, FieldTreeID)
	if err != nil {
		return nil, err
	}
	parentID, err := stringField(input, FieldParentNodeID)
	if err != nil {
		return nil, err
	}

	userInput := optionalString(input, FieldUserInput)

	path, err := n.deps.Trees.PathToNode(ctx, treeID, parentID)
	if err != nil {
		return nil, err
	}
	if n.opts.MaxTurns > 0 && len(path) > n.opts.MaxTurns {
		path = path[len(path)-n.opts.MaxTurns:]
	}

	var msgs []ports.Message
	if n.deps.Helpers.Has(HelperFormatHistory) {
		out, err := n.deps.Helpers.Call(ctx, HelperFormatHistory, map[string]any{"path": path})
		if err != nil {
			return nil, fmt.Errorf("format_history helper: %w", err)
		}
		formatted, ok := out.([]ports.Message)
		if !ok {
			return nil, fmt.Errorf("format_history helper: expected []ports.Message, got %T", out)
		}
		msgs = formatted
	} else {
		msgs = defaultTranscript(path)
	}

	if userInput != "" {
		msgs = append(msgs, ports.Message{Role: ports.RoleUser, Content: userInput})
	}
	return map[string]any{FieldMessages: msgs}, nil
}

// defaultTranscript flattens turn nodes into alternating user/assistant
// messages. The synthetic root carries no content and contributes nothing;
// empty sides of a turn (e.g. a greeting with no user input) are skipped.
func defaultTranscript(path []*domain.DialogueNode) []ports.Message {
	msgs := make([]ports.Message, 0, len(path)*2)
	for _, node := range path {
		if node.UserInput != "" {
			msgs = append(msgs, ports.Message{Role: ports.RoleUser, Content: node.UserInput})
		}
		if node.AssistantResponse != "" {
			msgs = append(msgs, ports.Message{Role: ports.RoleAssistant, Content: node.AssistantResponse})
		}
	}
	return msgs
}
