package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/workflow"
)

type modelOptions struct {
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// TimeoutSeconds bounds one invocation. The engine defines no timeout
	// policy; this node owns the deadline for its external call.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// Stream requests incremental delivery when the client supports it. The
	// output field is still the accumulated full response.
	Stream bool `mapstructure:"stream"`
}

// model invokes the LLM on the assembled transcript and produces the raw
// response text.
type model struct {
	deps Deps
	opts modelOptions
}

func newModel(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		if deps.Model == nil {
			return nil, fmt.Errorf("model node %s: no model client configured", cfg.ID)
		}
		opts := modelOptions{TimeoutSeconds: 120}
		if err := mapstructure.Decode(cfg.InitParams, &opts); err != nil {
			return nil, fmt.Errorf("model node %s: bad init params: %w", cfg.ID, err)
		}
		if opts.TimeoutSeconds <= 0 {
			return nil, fmt.Errorf("model node %s: timeout_seconds must be > 0", cfg.ID)
		}
		return &model{deps: deps, opts: opts}, nil
	}
}

func (n *model) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	msgs, err := messagesField(input, FieldMessages)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.opts.TimeoutSeconds)*time.Second)
	defer cancel()

	req := ports.ChatRequest{
		Model:       n.opts.Model,
		Messages:    msgs,
		Temperature: n.opts.Temperature,
		MaxTokens:   n.opts.MaxTokens,
	}

	var resp ports.ChatResponse
	if streamer, ok := n.deps.Model.(ports.StreamingModelClient); ok && n.opts.Stream {
		resp, err = streamer.CompleteStream(ctx, req, func(string) {})
	} else {
		resp, err = n.deps.Model.Complete(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}

	return map[string]any{FieldFullResponse: resp.Content}, nil
}
