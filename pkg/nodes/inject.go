package nodes

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/workflow"
)

type injectOptions struct {
	// System is a static system prompt prepended to the transcript.
	System string `mapstructure:"system"`

	// Helpers names registry helpers applied in order. Each receives the
	// current transcript and the character ID and returns the transformed
	// transcript. World-book, preset and regex front-matter transforms plug
	// in here.
	Helpers []string `mapstructure:"helpers"`
}

// inject applies content-injection transforms to the transcript before the
// model sees it.
type inject struct {
	deps Deps
	opts injectOptions
}

func newInject(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		var opts injectOptions
		if err := mapstructure.Decode(cfg.InitParams, &opts); err != nil {
			return nil, fmt.Errorf("inject node %s: bad init params: %w", cfg.ID, err)
		}
		// Resolve helpers at construction so a misconfigured pipeline fails
		// before the first turn.
		for _, name := range opts.Helpers {
			if !deps.Helpers.Has(name) {
				return nil, fmt.Errorf("inject node %s: unknown helper %q", cfg.ID, name)
			}
		}
		return &inject{deps: deps, opts: opts}, nil
	}
}

func (n *inject) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	msgs, err := messagesField(input, FieldMessages)
	if err != nil {
		return nil, err
	}
	characterID := optionalString(input, FieldCharacterID)

	// Copy before modifying: nodes must not mutate their input.
	out := make([]ports.Message, 0, len(msgs)+1)
	if n.opts.System != "" {
		out = append(out, ports.Message{Role: ports.RoleSystem, Content: n.opts.System})
	}
	out = append(out, msgs...)

	for _, name := range n.opts.Helpers {
		res, err := n.deps.Helpers.Call(ctx, name, map[string]any{
			FieldMessages:    out,
			FieldCharacterID: characterID,
		})
		if err != nil {
			return nil, fmt.Errorf("inject helper %q: %w", name, err)
		}
		transformed, ok := res.([]ports.Message)
		if !ok {
			return nil, fmt.Errorf("inject helper %q: expected []ports.Message, got %T", name, res)
		}
		out = transformed
	}

	return map[string]any{FieldMessages: out}, nil
}
