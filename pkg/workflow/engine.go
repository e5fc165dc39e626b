package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reveriehq/reverie/internal/logging"
)

// Hooks defines callbacks for engine observability. All fields are optional.
type Hooks struct {
	OnNodeStart  func(workflowID string, cfg NodeConfig)
	OnNodeFinish func(workflowID string, res NodeResult)
}

// boundNode pairs a node config with its constructed implementation.
type boundNode struct {
	cfg  NodeConfig
	node Node
}

// Engine interprets one workflow config. It is safe for concurrent use:
// every run threads its own context map, and the engine holds no per-run
// state. Within a run execution is strictly sequential, no fan-out.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	hooks  Hooks

	entry   boundNode
	middles []boundNode
	exit    boundNode
	afters  []boundNode

	syncAfter bool
	wg        sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger used for background failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithSynchronousAfter makes Execute await background nodes before
// returning, and include their results in the trace. Intended for tests and
// batch callers that need the writes to be visible immediately.
func WithSynchronousAfter() Option {
	return func(e *Engine) { e.syncAfter = true }
}

// NewEngine validates the config and resolves every node against the
// registry up front, so a bad pipeline fails at construction rather than
// mid-run.
func NewEngine(cfg Config, reg *NodeRegistry, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, nc := range cfg.Nodes {
		node, err := reg.Build(nc)
		if err != nil {
			return nil, err
		}
		b := boundNode{cfg: nc, node: node}
		switch nc.Category {
		case CategoryEntry:
			e.entry = b
		case CategoryMiddle:
			e.middles = append(e.middles, b)
		case CategoryExit:
			e.exit = b
		case CategoryAfter:
			e.afters = append(e.afters, b)
		}
	}
	return e, nil
}

// Execute runs the pipeline against the initial parameters.
//
// The entry node runs first, then each middle node in declared order, then
// the exit node, whose completion yields the returned Result. A failure
// before the exit aborts the run: the caller gets the typed error together
// with the partial trace collected so far, and no background node runs.
//
// After the result is built, the after nodes run on the full accumulated
// context. Each one's failure is caught and logged independently and never
// surfaces to the caller.
func (e *Engine) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	run := &Result{
		WorkflowID: e.cfg.ID,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	// Seed the context map. Parameters behave like any other produced field:
	// later writers overwrite them.
	ctxMap := make(map[string]any, len(params))
	for k, v := range params {
		ctxMap[k] = v
	}

	// The entry node's input fields are the run's required parameters.
	for _, field := range e.entry.cfg.InputFields {
		if _, ok := ctxMap[field]; !ok {
			run.Status = StatusFailed
			run.EndedAt = time.Now().UTC()
			return run, &ValidationError{WorkflowID: e.cfg.ID, Param: field}
		}
	}

	foreground := make([]boundNode, 0, len(e.middles)+2)
	foreground = append(foreground, e.entry)
	foreground = append(foreground, e.middles...)
	foreground = append(foreground, e.exit)

	for i, b := range foreground {
		res, err := e.runNode(ctx, b, ctxMap)
		run.Results = append(run.Results, res)
		if err != nil {
			for _, rest := range foreground[i+1:] {
				run.Results = append(run.Results, NodeResult{NodeID: rest.cfg.ID, Status: StatusSkipped})
			}
			run.Status = StatusFailed
			run.EndedAt = time.Now().UTC()
			return run, err
		}
	}

	run.Status = StatusCompleted
	run.EndedAt = time.Now().UTC()
	run.OutputData = project(ctxMap, e.exit.cfg.OutputFields, nil)

	if len(e.afters) > 0 {
		if e.syncAfter {
			run.Results = append(run.Results, e.runAfters(ctx, ctxMap)...)
		} else {
			// Detach from the caller's cancellation: the response may be long
			// gone while these still write to the store.
			bg := context.WithoutCancel(ctx)
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.runAfters(bg, ctxMap)
			}()
		}
	}
	return run, nil
}

// Wait blocks until all background node executions have finished. Used on
// shutdown.
func (e *Engine) Wait() { e.wg.Wait() }

// runAfters executes the background band. Failures are isolated per node:
// one failing after node never blocks its siblings.
func (e *Engine) runAfters(ctx context.Context, ctxMap map[string]any) []NodeResult {
	results := make([]NodeResult, 0, len(e.afters))
	for _, b := range e.afters {
		res, err := e.runNode(ctx, b, ctxMap)
		results = append(results, res)
		if err != nil {
			e.logger.Error("background node failed",
				"workflow_id", e.cfg.ID,
				"node_id", b.cfg.ID,
				"err", err,
			)
		}
	}
	return results
}

// runNode projects the node's input from the context map, invokes it, and
// merges its declared outputs back in, overwriting on collision.
func (e *Engine) runNode(ctx context.Context, b boundNode, ctxMap map[string]any) (NodeResult, error) {
	res := NodeResult{
		NodeID:    b.cfg.ID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(e.cfg.ID, b.cfg)
	}

	input := project(ctxMap, b.cfg.InputFields, b.cfg.InputMapping)
	res.Input = input

	output, err := b.node.Execute(ctx, input)
	res.EndedAt = time.Now().UTC()
	if err != nil {
		res.Status = StatusFailed
		res.Err = err.Error()
		e.finishNode(res)
		return res, &NodeError{NodeID: b.cfg.ID, Err: err}
	}

	// Contract check: every declared output must be present. Extra keys the
	// node produced are dropped.
	merged := make(map[string]any, len(b.cfg.OutputFields))
	for _, field := range b.cfg.OutputFields {
		v, ok := output[field]
		if !ok {
			res.Status = StatusFailed
			missing := &MissingOutputError{NodeID: b.cfg.ID, Field: field}
			res.Err = missing.Error()
			e.finishNode(res)
			return res, missing
		}
		merged[field] = v
	}
	for k, v := range merged {
		ctxMap[k] = v
	}

	res.Status = StatusCompleted
	res.Output = merged
	e.finishNode(res)
	return res, nil
}

func (e *Engine) finishNode(res NodeResult) {
	if e.hooks.OnNodeFinish != nil {
		e.hooks.OnNodeFinish(e.cfg.ID, res)
	}
}

// project selects fields from the context map, applying the rename table.
func project(ctxMap map[string]any, fields []string, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		v, ok := ctxMap[field]
		if !ok {
			continue
		}
		name := field
		if renamed, ok := mapping[field]; ok {
			name = renamed
		}
		out[name] = v
	}
	return out
}
