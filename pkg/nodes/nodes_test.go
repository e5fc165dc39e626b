package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveriehq/reverie/pkg/adapters/memory"
	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/registry"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// fakeModel scripts the next completion.
type fakeModel struct {
	reply    string
	err      error
	lastReq  ports.ChatRequest
	streamed bool
}

func (f *fakeModel) Complete(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return ports.ChatResponse{}, f.err
	}
	return ports.ChatResponse{Content: f.reply}, nil
}

// streamingModel additionally implements chunked delivery.
type streamingModel struct {
	fakeModel
	chunks []string
}

func (s *streamingModel) CompleteStream(ctx context.Context, req ports.ChatRequest, onChunk func(string)) (ports.ChatResponse, error) {
	s.lastReq = req
	s.streamed = true
	var full string
	for _, c := range s.chunks {
		onChunk(c)
		full += c
	}
	return ports.ChatResponse{Content: full}, nil
}

func testDeps(t *testing.T, model ports.ModelClient) Deps {
	t.Helper()
	var n int
	trees := dialogue.NewManager(memory.NewStore(), dialogue.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}))
	return Deps{
		Trees:   trees,
		Model:   model,
		Helpers: registry.New(),
	}
}

func build(t *testing.T, b workflow.Builder, cfg workflow.NodeConfig) workflow.Node {
	t.Helper()
	node, err := b(cfg)
	require.NoError(t, err)
	return node
}

func TestRegister(t *testing.T) {
	reg := workflow.NewNodeRegistry()
	require.NoError(t, Register(reg, testDeps(t, &fakeModel{})))

	for _, typ := range []string{"chat_entry", "history", "inject", "model", "parse", "persist", "summarize"} {
		_, err := reg.Build(workflow.NodeConfig{ID: "n", Type: typ})
		assert.NoError(t, err, typ)
	}

	assert.Error(t, Register(workflow.NewNodeRegistry(), Deps{}), "tree manager is required")
}

func TestChatEntry(t *testing.T) {
	deps := testDeps(t, nil)
	node := build(t, newChatEntry(deps), workflow.NodeConfig{ID: "entry"})
	ctx := context.Background()

	out, err := node.Execute(ctx, map[string]any{
		FieldCharacterID: "alice",
		FieldUserInput:   "hello",
	})
	require.NoError(t, err)

	treeID, _ := out[FieldTreeID].(string)
	assert.NotEmpty(t, treeID)
	assert.Equal(t, domain.RootNodeID, out[FieldParentNodeID], "first turn branches off the root")

	// A later turn branches off the tree's current pointer.
	nodeID, err := deps.Trees.AddNode(ctx, treeID, domain.RootNodeID, dialogue.NodeFields{UserInput: "hi"})
	require.NoError(t, err)

	out, err = node.Execute(ctx, map[string]any{
		FieldCharacterID: "alice",
		FieldUserInput:   "again",
	})
	require.NoError(t, err)
	assert.Equal(t, treeID, out[FieldTreeID], "one tree per character")
	assert.Equal(t, nodeID, out[FieldParentNodeID])

	_, err = node.Execute(ctx, map[string]any{FieldCharacterID: "alice"})
	assert.ErrorContains(t, err, FieldUserInput)
}

func seedConversation(t *testing.T, deps Deps) (treeID, lastID string) {
	t.Helper()
	ctx := context.Background()
	tree, err := deps.Trees.CreateTree(ctx, "alice")
	require.NoError(t, err)

	parent := domain.RootNodeID
	for i, turn := range []dialogue.NodeFields{
		{UserInput: "hello", AssistantResponse: "well met"},
		{UserInput: "how are you", AssistantResponse: "quite fine"},
	} {
		id, err := deps.Trees.AddNode(ctx, tree.ID, parent, turn)
		require.NoError(t, err, "turn %d", i)
		parent = id
	}
	return tree.ID, parent
}

func TestHistory_DefaultTranscript(t *testing.T) {
	deps := testDeps(t, nil)
	treeID, lastID := seedConversation(t, deps)
	node := build(t, newHistory(deps), workflow.NodeConfig{ID: "history"})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldTreeID:       treeID,
		FieldParentNodeID: lastID,
	})
	require.NoError(t, err)

	msgs, ok := out[FieldMessages].([]ports.Message)
	require.True(t, ok)
	require.Len(t, msgs, 4, "the content-free root adds no messages")
	assert.Equal(t, ports.Message{Role: ports.RoleUser, Content: "hello"}, msgs[0])
	assert.Equal(t, ports.Message{Role: ports.RoleAssistant, Content: "quite fine"}, msgs[3])
}

func TestHistory_AppendsPendingInput(t *testing.T) {
	deps := testDeps(t, nil)
	treeID, lastID := seedConversation(t, deps)
	node := build(t, newHistory(deps), workflow.NodeConfig{ID: "history"})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldTreeID:       treeID,
		FieldParentNodeID: lastID,
		FieldUserInput:    "and then?",
	})
	require.NoError(t, err)

	msgs := out[FieldMessages].([]ports.Message)
	require.Len(t, msgs, 5)
	assert.Equal(t, ports.Message{Role: ports.RoleUser, Content: "and then?"}, msgs[4])
}

func TestHistory_MaxTurns(t *testing.T) {
	deps := testDeps(t, nil)
	treeID, lastID := seedConversation(t, deps)
	node := build(t, newHistory(deps), workflow.NodeConfig{
		ID:         "history",
		InitParams: map[string]any{"max_turns": 1},
	})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldTreeID:       treeID,
		FieldParentNodeID: lastID,
	})
	require.NoError(t, err)

	msgs := out[FieldMessages].([]ports.Message)
	require.Len(t, msgs, 2)
	assert.Equal(t, "how are you", msgs[0].Content)
}

func TestHistory_FormatHelper(t *testing.T) {
	deps := testDeps(t, nil)
	treeID, lastID := seedConversation(t, deps)
	require.NoError(t, deps.Helpers.Register(HelperFormatHistory, func(ctx context.Context, args map[string]any) (any, error) {
		path, ok := args["path"].([]*domain.DialogueNode)
		require.True(t, ok)
		return []ports.Message{{Role: ports.RoleSystem, Content: fmt.Sprintf("%d turns", len(path))}}, nil
	}))
	node := build(t, newHistory(deps), workflow.NodeConfig{ID: "history"})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldTreeID:       treeID,
		FieldParentNodeID: lastID,
	})
	require.NoError(t, err)

	msgs := out[FieldMessages].([]ports.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, "3 turns", msgs[0].Content)
}

func TestInject_SystemPromptAndHelpers(t *testing.T) {
	deps := testDeps(t, nil)
	require.NoError(t, deps.Helpers.Register("world_book", func(ctx context.Context, args map[string]any) (any, error) {
		msgs := args[FieldMessages].([]ports.Message)
		assert.Equal(t, "alice", args[FieldCharacterID])
		return append(msgs, ports.Message{Role: ports.RoleSystem, Content: "lore"}), nil
	}))
	node := build(t, newInject(deps), workflow.NodeConfig{
		ID: "inject",
		InitParams: map[string]any{
			"system":  "You are a bard.",
			"helpers": []string{"world_book"},
		},
	})

	in := []ports.Message{{Role: ports.RoleUser, Content: "hi"}}
	out, err := node.Execute(context.Background(), map[string]any{
		FieldMessages:    in,
		FieldCharacterID: "alice",
	})
	require.NoError(t, err)

	msgs := out[FieldMessages].([]ports.Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, "You are a bard.", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "lore", msgs[2].Content)

	require.Len(t, in, 1, "input transcript must not be mutated")
}

func TestInject_UnknownHelperFailsAtBuild(t *testing.T) {
	deps := testDeps(t, nil)
	_, err := newInject(deps)(workflow.NodeConfig{
		ID:         "inject",
		InitParams: map[string]any{"helpers": []string{"missing"}},
	})
	assert.ErrorContains(t, err, `unknown helper "missing"`)
}

func TestModel_Complete(t *testing.T) {
	client := &fakeModel{reply: "greetings, traveler"}
	deps := testDeps(t, client)
	node := build(t, newModel(deps), workflow.NodeConfig{
		ID: "model",
		InitParams: map[string]any{
			"model":       "gpt-4o-mini",
			"temperature": 0.8,
			"max_tokens":  256,
		},
	})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldMessages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "greetings, traveler", out[FieldFullResponse])
	assert.Equal(t, "gpt-4o-mini", client.lastReq.Model)
	assert.Equal(t, float32(0.8), client.lastReq.Temperature)
	assert.Equal(t, 256, client.lastReq.MaxTokens)
}

func TestModel_StreamsWhenRequested(t *testing.T) {
	client := &streamingModel{chunks: []string{"hel", "lo"}}
	deps := testDeps(t, client)
	node := build(t, newModel(deps), workflow.NodeConfig{
		ID:         "model",
		InitParams: map[string]any{"stream": true},
	})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldMessages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.True(t, client.streamed)
	assert.Equal(t, "hello", out[FieldFullResponse])
}

func TestModel_Errors(t *testing.T) {
	deps := testDeps(t, &fakeModel{err: errors.New("rate limited")})
	node := build(t, newModel(deps), workflow.NodeConfig{ID: "model"})

	_, err := node.Execute(context.Background(), map[string]any{
		FieldMessages: []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
	})
	assert.ErrorContains(t, err, "model invocation")

	_, err = newModel(Deps{Trees: deps.Trees})(workflow.NodeConfig{ID: "model"})
	assert.ErrorContains(t, err, "no model client configured")
}

func TestParse_ThinkingExtraction(t *testing.T) {
	deps := testDeps(t, nil)
	node := build(t, newParse(deps), workflow.NodeConfig{ID: "parse"})

	full := "<think>the user greets me\nI should bow</think>Well met, friend."
	out, err := node.Execute(context.Background(), map[string]any{FieldFullResponse: full})
	require.NoError(t, err)

	assert.Equal(t, "Well met, friend.", out[FieldAssistant])
	assert.Equal(t, "the user greets me\nI should bow", out[FieldThinking])
	assert.Equal(t, full, out[FieldFullResponse], "the raw response is kept for auditing")
	assert.Equal(t, map[string]any{}, out[FieldParsedContent])
}

func TestParse_ThinkingTagVariant(t *testing.T) {
	deps := testDeps(t, nil)
	node := build(t, newParse(deps), workflow.NodeConfig{ID: "parse"})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldFullResponse: "<thinking>hmm</thinking>Reply.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Reply.", out[FieldAssistant])
	assert.Equal(t, "hmm", out[FieldThinking])
}

func TestParse_StripPatterns(t *testing.T) {
	deps := testDeps(t, nil)
	node := build(t, newParse(deps), workflow.NodeConfig{
		ID:         "parse",
		InitParams: map[string]any{"strip_patterns": []string{`\[ooc:.*?\]`}},
	})

	out, err := node.Execute(context.Background(), map[string]any{
		FieldFullResponse: "Well met. [ooc: rolling dice]",
	})
	require.NoError(t, err)
	assert.Equal(t, "Well met.", out[FieldAssistant])

	_, err = newParse(deps)(workflow.NodeConfig{
		ID:         "parse",
		InitParams: map[string]any{"strip_patterns": []string{"("}},
	})
	assert.ErrorContains(t, err, "bad strip pattern")
}

func TestParse_ContentHelper(t *testing.T) {
	deps := testDeps(t, nil)
	require.NoError(t, deps.Helpers.Register(HelperParseContent, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"mood": "warm"}, nil
	}))
	node := build(t, newParse(deps), workflow.NodeConfig{ID: "parse"})

	out, err := node.Execute(context.Background(), map[string]any{FieldFullResponse: "Hello."})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mood": "warm"}, out[FieldParsedContent])
}

func TestPersist(t *testing.T) {
	deps := testDeps(t, nil)
	ctx := context.Background()
	tree, err := deps.Trees.CreateTree(ctx, "alice")
	require.NoError(t, err)
	node := build(t, newPersist(deps), workflow.NodeConfig{ID: "persist"})

	out, err := node.Execute(ctx, map[string]any{
		FieldTreeID:         tree.ID,
		FieldParentNodeID:   domain.RootNodeID,
		FieldResponseNodeID: "resp-1",
		FieldUserInput:      "hello",
		FieldAssistant:      "well met",
		FieldFullResponse:   "<think>x</think>well met",
		FieldThinking:       "x",
		FieldParsedContent:  map[string]any{"mood": "warm"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resp-1", out[FieldNodeID], "the pre-generated response node ID wins")

	saved, err := deps.Trees.Tree(ctx, tree.ID)
	require.NoError(t, err)
	stored, ok := saved.Node("resp-1")
	require.True(t, ok)
	assert.Equal(t, "hello", stored.UserInput)
	assert.Equal(t, "well met", stored.AssistantResponse)
	assert.Equal(t, "x", stored.ThinkingContent)
	assert.Equal(t, "warm", stored.ParsedContent["mood"])
	assert.Equal(t, "resp-1", saved.CurrentID)
}

func TestSummarize(t *testing.T) {
	client := &fakeModel{reply: "a warm greeting"}
	deps := testDeps(t, client)
	ctx := context.Background()
	tree, err := deps.Trees.CreateTree(ctx, "alice")
	require.NoError(t, err)
	nodeID, err := deps.Trees.AddNode(ctx, tree.ID, domain.RootNodeID, dialogue.NodeFields{
		AssistantResponse: "well met, friend",
	})
	require.NoError(t, err)

	node := build(t, newSummarize(deps), workflow.NodeConfig{ID: "summarize"})
	out, err := node.Execute(ctx, map[string]any{
		FieldTreeID:         tree.ID,
		FieldResponseNodeID: nodeID,
		"text":              "well met, friend",
	})
	require.NoError(t, err)
	assert.Equal(t, "a warm greeting", out[FieldSummary])

	// The summary request carries the prompt and the turn text.
	require.Len(t, client.lastReq.Messages, 2)
	assert.Equal(t, ports.RoleSystem, client.lastReq.Messages[0].Role)
	assert.Equal(t, "well met, friend", client.lastReq.Messages[1].Content)

	saved, err := deps.Trees.Tree(ctx, tree.ID)
	require.NoError(t, err)
	stored, _ := saved.Node(nodeID)
	assert.Equal(t, "a warm greeting", stored.ParsedContent[FieldSummary])
}
