// Package engine runs agent sessions against the streaming model client. At
// most MaxWorkers sessions execute concurrently; further starts queue FIFO on
// a weighted semaphore. The engine owns one execution context per running
// session and drives the doing-side lifecycle transitions through the session
// manager.
package engine

import (
	"context"
	"sync"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/arbiter"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/llm"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxWorkers is the number of agents allowed to execute
	// concurrently.
	DefaultMaxWorkers = 3

	// DefaultMaxSteps caps the number of model turns per execution.
	DefaultMaxSteps = 50

	// DefaultMaxTokens is the per-turn generation budget passed to the
	// model client.
	DefaultMaxTokens = 8192
)

// Transitioner applies validated lifecycle transitions. The session manager
// implements it; the engine never writes session status directly.
type Transitioner interface {
	Transition(ctx context.Context, sessionID string, to loom.Status, metadata map[string]any) error
}

// Options configures an Engine.
type Options struct {
	Store        *store.Store
	Arbiter      *arbiter.Arbiter
	Bus          *events.Bus
	Client       llm.StreamingClient
	Transitioner Transitioner
	Tools        []loom.Tool
	Logger       log.Logger
	SystemPrompt string
	MaxWorkers   int
	MaxSteps     int
	MaxTokens    int
}

// StartOptions tune a single execution.
type StartOptions struct {
	// MaxSteps overrides the engine-wide step cap when positive.
	MaxSteps int
}

type execution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine schedules and runs agent executions.
type Engine struct {
	store        *store.Store
	arbiter      *arbiter.Arbiter
	bus          *events.Bus
	client       llm.StreamingClient
	transitioner Transitioner
	tools        map[string]loom.Tool
	toolDefs     []llm.ToolDefinition
	logger       log.Logger
	systemPrompt string
	maxSteps     int
	maxTokens    int

	slots *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*execution
	baseCtx context.Context
	stopAll context.CancelFunc
}

// New returns an Engine ready to start sessions.
func New(opts Options) *Engine {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	tools := make(map[string]loom.Tool, len(opts.Tools))
	defs := make([]llm.ToolDefinition, 0, len(opts.Tools))
	for _, tool := range opts.Tools {
		tools[tool.Name()] = tool
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &Engine{
		store:        opts.Store,
		arbiter:      opts.Arbiter,
		bus:          opts.Bus,
		client:       opts.Client,
		transitioner: opts.Transitioner,
		tools:        tools,
		toolDefs:     defs,
		logger:       opts.Logger,
		systemPrompt: opts.SystemPrompt,
		maxSteps:     opts.MaxSteps,
		maxTokens:    opts.MaxTokens,
		slots:        semaphore.NewWeighted(int64(opts.MaxWorkers)),
		running:      make(map[string]*execution),
		baseCtx:      baseCtx,
		stopAll:      stopAll,
	}
}

// Start transitions the session to doing and schedules its execution. When
// all worker slots are busy the execution queues until one frees up. Returns
// loom.ErrAlreadyRunning if the session already holds an execution context.
func (e *Engine) Start(ctx context.Context, sessionID string, opts StartOptions) error {
	if e.client == nil {
		return loom.ErrNoClient
	}
	e.mu.Lock()
	if _, ok := e.running[sessionID]; ok {
		e.mu.Unlock()
		return loom.ErrAlreadyRunning
	}
	execCtx, cancel := context.WithCancel(e.baseCtx)
	exec := &execution{cancel: cancel, done: make(chan struct{})}
	e.running[sessionID] = exec
	e.mu.Unlock()

	if err := e.transitioner.Transition(ctx, sessionID, loom.StatusDoing, nil); err != nil {
		cancel()
		e.unregister(sessionID, exec)
		return err
	}

	maxSteps := e.maxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}
	go func() {
		defer close(exec.done)
		defer cancel()
		defer e.unregister(sessionID, exec)
		e.execute(execCtx, sessionID, maxSteps)
	}()
	return nil
}

// Stop aborts a running execution and waits for its teardown to finish.
// Returns loom.ErrNotRunning if the session has no execution context.
func (e *Engine) Stop(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	exec, ok := e.running[sessionID]
	e.mu.Unlock()
	if !ok {
		return loom.ErrNotRunning
	}
	exec.cancel()
	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the session holds an execution context, queued or
// active.
func (e *Engine) IsRunning(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[sessionID]
	return ok
}

// RunningSessions returns the ids of sessions holding execution contexts.
func (e *Engine) RunningSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown aborts every execution and waits for all teardowns, or until the
// context expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopAll()
	e.mu.Lock()
	waiting := make([]*execution, 0, len(e.running))
	for _, exec := range e.running {
		waiting = append(waiting, exec)
	}
	e.mu.Unlock()
	for _, exec := range waiting {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) unregister(sessionID string, exec *execution) {
	e.mu.Lock()
	if current, ok := e.running[sessionID]; ok && current == exec {
		delete(e.running, sessionID)
	}
	e.mu.Unlock()
}
