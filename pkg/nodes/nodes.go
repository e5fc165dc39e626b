/*
Package nodes provides the built-in pipeline nodes for the roleplay chat
workflow: context assembly, prompt injection, model invocation, output
post-processing, and the background persistence steps.

Every node is stateless and built from its NodeConfig. Domain-specific
content logic (world-book text, preset prompts, custom transcript formats)
stays behind named helpers in a registry.Registry so the orchestration here
never hardcodes it.
*/
package nodes

import (
	"fmt"
	"log/slog"

	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/registry"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// Context field keys shared by the built-in nodes.
const (
	FieldCharacterID    = "characterID"
	FieldUserInput      = "userInput"
	FieldResponseNodeID = "responseNodeID"
	FieldTreeID         = "treeID"
	FieldParentNodeID   = "parentNodeID"
	FieldMessages       = "messages"
	FieldFullResponse   = "fullResponse"
	FieldAssistant      = "assistantResponse"
	FieldThinking       = "thinkingContent"
	FieldParsedContent  = "parsedContent"
	FieldNodeID         = "nodeID"
	FieldSummary        = "summary"
)

// Helper names the built-in nodes look up. All are optional seams: when a
// helper is absent the node falls back to its default behavior.
const (
	HelperFormatHistory = "format_history"
	HelperParseContent  = "parse_content"
)

// Deps are the collaborators injected into the built-in nodes.
type Deps struct {
	Trees   *dialogue.Manager
	Model   ports.ModelClient
	Helpers *registry.Registry
	Logger  *slog.Logger
}

func (d *Deps) defaults() {
	if d.Helpers == nil {
		d.Helpers = registry.New()
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
}

// Register wires every built-in node type into the registry.
func Register(reg *workflow.NodeRegistry, deps Deps) error {
	deps.defaults()
	if deps.Trees == nil {
		return fmt.Errorf("nodes: tree manager is required")
	}

	builders := map[string]workflow.Builder{
		"chat_entry": newChatEntry(deps),
		"history":    newHistory(deps),
		"inject":     newInject(deps),
		"model":      newModel(deps),
		"parse":      newParse(deps),
		"persist":    newPersist(deps),
		"summarize":  newSummarize(deps),
	}
	for name, b := range builders {
		if err := reg.Register(name, b); err != nil {
			return err
		}
	}
	return nil
}

// stringField extracts a required string from a node input map.
func stringField(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing input field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input field %q: expected string, got %T", key, v)
	}
	return s, nil
}

// optionalString extracts a string, tolerating absence.
func optionalString(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

// messagesField extracts the transcript from a node input map.
func messagesField(input map[string]any, key string) ([]ports.Message, error) {
	v, ok := input[key]
	if !ok {
		return nil, fmt.Errorf("missing input field %q", key)
	}
	msgs, ok := v.([]ports.Message)
	if !ok {
		return nil, fmt.Errorf("input field %q: expected []ports.Message, got %T", key, v)
	}
	return msgs, nil
}
