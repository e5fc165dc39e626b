/*
Package reverie assembles the roleplay chat backend: a staged workflow
engine executing the per-turn pipeline, and a branching dialogue tree
persisted per character.

	app, err := reverie.New(
		reverie.WithModelClient(client),
		reverie.WithTreeStore(store),
	)
	res, err := app.Chat.Turn(ctx, "char-1", "hello")
*/
package reverie

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/adapters/memory"
	"github.com/reveriehq/reverie/pkg/chat"
	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/nodes"
	"github.com/reveriehq/reverie/pkg/observability"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/registry"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// App is a fully wired Reverie instance.
type App struct {
	Engine  *workflow.Engine
	Trees   *dialogue.Manager
	Chat    *chat.Service
	Helpers *registry.Registry
	Metrics *observability.Metrics
}

type options struct {
	store     ports.TreeStore
	model     ports.ModelClient
	locker    ports.DistributedLocker
	logger    *slog.Logger
	helpers   *registry.Registry
	workflow  *workflow.Config
	promReg   prometheus.Registerer
	syncAfter bool
}

// Option configures New.
type Option func(*options)

// WithTreeStore selects the persistence adapter. Defaults to the in-memory
// store.
func WithTreeStore(store ports.TreeStore) Option {
	return func(o *options) { o.store = store }
}

// WithModelClient sets the LLM client used by the model and summarize nodes.
func WithModelClient(client ports.ModelClient) Option {
	return func(o *options) { o.model = client }
}

// WithLocker adds distributed locking for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *options) { o.locker = locker }
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHelpers injects a pre-populated helper registry (world-book, preset
// and transcript-format helpers).
func WithHelpers(helpers *registry.Registry) Option {
	return func(o *options) { o.helpers = helpers }
}

// WithWorkflow replaces the built-in roleplay pipeline.
func WithWorkflow(cfg workflow.Config) Option {
	return func(o *options) { o.workflow = &cfg }
}

// WithMetrics registers engine metrics on the given prometheus registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.promReg = reg }
}

// WithSynchronousAfter makes turns await their background band. For tests.
func WithSynchronousAfter() Option {
	return func(o *options) { o.syncAfter = true }
}

// New wires an App.
func New(opts ...Option) (*App, error) {
	o := options{
		store:   memory.NewStore(),
		logger:  logging.NewNop(),
		helpers: registry.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	treeOpts := []dialogue.Option{dialogue.WithLogger(o.logger)}
	if o.locker != nil {
		treeOpts = append(treeOpts, dialogue.WithLocker(o.locker))
	}
	trees := dialogue.NewManager(o.store, treeOpts...)

	nodeReg := workflow.NewNodeRegistry()
	err := nodes.Register(nodeReg, nodes.Deps{
		Trees:   trees,
		Model:   o.model,
		Helpers: o.helpers,
		Logger:  o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register built-in nodes: %w", err)
	}

	cfg := DefaultWorkflow()
	if o.workflow != nil {
		cfg = *o.workflow
	}

	engineOpts := []workflow.Option{workflow.WithLogger(o.logger)}
	var metrics *observability.Metrics
	if o.promReg != nil {
		metrics = observability.NewMetrics(o.promReg)
		engineOpts = append(engineOpts, workflow.WithHooks(metrics.Hooks()))
	}
	if o.syncAfter {
		engineOpts = append(engineOpts, workflow.WithSynchronousAfter())
	}

	engine, err := workflow.NewEngine(cfg, nodeReg, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	return &App{
		Engine:  engine,
		Trees:   trees,
		Chat:    chat.NewService(engine, trees, chat.WithLogger(o.logger)),
		Helpers: o.helpers,
		Metrics: metrics,
	}, nil
}

// DefaultWorkflow is the built-in roleplay chat pipeline: assemble history,
// apply injections, invoke the model, post-process the reply, then persist
// and summarize in the background.
func DefaultWorkflow() workflow.Config {
	return workflow.Config{
		ID:   "roleplay-chat",
		Name: "Roleplay chat pipeline",
		Nodes: []workflow.NodeConfig{
			{
				ID:           "chat_entry",
				Name:         "Chat entry",
				Type:         "chat_entry",
				Category:     workflow.CategoryEntry,
				Next:         []string{"history"},
				InputFields:  []string{nodes.FieldCharacterID, nodes.FieldUserInput, nodes.FieldResponseNodeID},
				OutputFields: []string{nodes.FieldTreeID, nodes.FieldParentNodeID},
			},
			{
				ID:           "history",
				Name:         "History assembly",
				Type:         "history",
				Category:     workflow.CategoryMiddle,
				Next:         []string{"inject"},
				InputFields:  []string{nodes.FieldTreeID, nodes.FieldParentNodeID, nodes.FieldUserInput},
				OutputFields: []string{nodes.FieldMessages},
			},
			{
				ID:           "inject",
				Name:         "Content injection",
				Type:         "inject",
				Category:     workflow.CategoryMiddle,
				Next:         []string{"model"},
				InputFields:  []string{nodes.FieldMessages, nodes.FieldCharacterID},
				OutputFields: []string{nodes.FieldMessages},
			},
			{
				ID:           "model",
				Name:         "Model invocation",
				Type:         "model",
				Category:     workflow.CategoryMiddle,
				Next:         []string{"parse"},
				InputFields:  []string{nodes.FieldMessages},
				OutputFields: []string{nodes.FieldFullResponse},
			},
			{
				ID:           "parse",
				Name:         "Response post-processing",
				Type:         "parse",
				Category:     workflow.CategoryExit,
				Next:         []string{"persist"},
				InputFields:  []string{nodes.FieldFullResponse},
				OutputFields: []string{nodes.FieldAssistant, nodes.FieldThinking, nodes.FieldParsedContent, nodes.FieldFullResponse},
			},
			{
				ID:       "persist",
				Name:     "Persist turn",
				Type:     "persist",
				Category: workflow.CategoryAfter,
				InputFields: []string{
					nodes.FieldTreeID, nodes.FieldParentNodeID, nodes.FieldUserInput,
					nodes.FieldAssistant, nodes.FieldFullResponse, nodes.FieldThinking,
					nodes.FieldParsedContent, nodes.FieldResponseNodeID,
				},
				OutputFields: []string{nodes.FieldNodeID},
			},
			{
				ID:           "summarize",
				Name:         "Background summary",
				Type:         "summarize",
				Category:     workflow.CategoryAfter,
				InputFields:  []string{nodes.FieldTreeID, nodes.FieldResponseNodeID, nodes.FieldAssistant},
				InputMapping: map[string]string{nodes.FieldAssistant: "text"},
				OutputFields: []string{nodes.FieldSummary},
			},
		},
	}
}
