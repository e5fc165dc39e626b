package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/workflow"
)

type summarizeOptions struct {
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Prompt         string `mapstructure:"prompt"`
}

const defaultSummaryPrompt = "Summarize the following roleplay reply in one short sentence. " +
	"Reply with the summary only."

// summarize asks the model for a compressed summary of the turn and attaches
// it to the persisted node after the fact. It runs in the background band
// and depends on persist having stored the node under the response node ID.
type summarize struct {
	deps Deps
	opts summarizeOptions
}

func newSummarize(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		if deps.Model == nil {
			return nil, fmt.Errorf("summarize node %s: no model client configured", cfg.ID)
		}
		opts := summarizeOptions{
			TimeoutSeconds: 60,
			MaxTokens:      128,
			Prompt:         defaultSummaryPrompt,
		}
		if err := mapstructure.Decode(cfg.InitParams, &opts); err != nil {
			return nil, fmt.Errorf("summarize node %s: bad init params: %w", cfg.ID, err)
		}
		if opts.TimeoutSeconds <= 0 {
			return nil, fmt.Errorf("summarize node %s: timeout_seconds must be > 0", cfg.ID)
		}
		return &summarize{deps: deps, opts: opts}, nil
	}
}

func (n *summarize) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	treeID, err := stringField(input, FieldTreeID)
	if err != nil {
		return nil, err
	}
	nodeID, err := stringField(input, FieldResponseNodeID)
	if err != nil {
		return nil, err
	}
	text, err := stringField(input, "text")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(n.opts.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := n.deps.Model.Complete(ctx, ports.ChatRequest{
		Model:     n.opts.Model,
		MaxTokens: n.opts.MaxTokens,
		Messages: []ports.Message{
			{Role: ports.RoleSystem, Content: n.opts.Prompt},
			{Role: ports.RoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summary invocation: %w", err)
	}

	err = n.deps.Trees.UpdateNode(ctx, treeID, nodeID, dialogue.NodeFields{
		ParsedContent: map[string]any{FieldSummary: resp.Content},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{FieldSummary: resp.Content}, nil
}
