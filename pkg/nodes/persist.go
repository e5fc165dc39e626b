package nodes

import (
	"context"

	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// persist writes the completed turn into the dialogue tree. It runs in the
// background band: the caller already has the response, correlated by the
// pre-generated response node ID.
type persist struct {
	deps Deps
}

func newPersist(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		return &persist{deps: deps}, nil
	}
}

func (n *persist) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	treeID, err := stringField(input, FieldTreeID)
	if err != nil {
		return nil, err
	}
	parentID, err := stringField(input, FieldParentNodeID)
	if err != nil {
		return nil, err
	}

	fields := dialogue.NodeFields{
		UserInput:         optionalString(input, FieldUserInput),
		AssistantResponse: optionalString(input, FieldAssistant),
		FullResponse:      optionalString(input, FieldFullResponse),
		ThinkingContent:   optionalString(input, FieldThinking),
	}
	if parsed, ok := input[FieldParsedContent].(map[string]any); ok {
		fields.ParsedContent = parsed
	}

	var opts []dialogue.AddOption
	if id := optionalString(input, FieldResponseNodeID); id != "" {
		opts = append(opts, dialogue.WithNodeID(id))
	}

	nodeID, err := n.deps.Trees.AddNode(ctx, treeID, parentID, fields, opts...)
	if err != nil {
		return nil, err
	}
	return map[string]any{FieldNodeID: nodeID}, nil
}
