package acts

import (
	"sync"
	"time"
)

// Process is the container of a single execution: its task tree, env,
// root task id, outputs, and lifecycle-hook registry (spec.md §3 Process).
type Process struct {
	ID      string
	ModelID string
	Tree    *Model // compiled model bound to this process
	State   TaskState
	Env     map[string]any
	Outputs map[string]any
	Start   time.Time
	End     time.Time

	Tasks *TaskTree

	mu    sync.Mutex
	hooks []func(ProcEvent)
}

// Model pairs a Workflow with its compiled NodeTree, as stored per-process
// (a NodeTree is shared immutably across every Process built from the same
// model, per spec.md §2 component 2).
type Model struct {
	Workflow Workflow
	Tree     *NodeTree
}

// ProcEventKind distinguishes the four lifecycle events the Emitter fans
// out (spec.md §4.9).
type ProcEventKind int

const (
	EventStart ProcEventKind = iota
	EventMessage
	EventComplete
	EventError
)

// ProcEvent is the internal lifecycle hook payload; messaging.go converts
// these into emit.Event values sent to the Emitter.
type ProcEvent struct {
	Kind ProcEventKind
	PID  string
	TID  string
	Step int
	Err  *Error
}

// OnEvent registers a lifecycle-hook callback (spec.md §3: "lifecycle-hook
// registry for a single execution").
func (p *Process) OnEvent(fn func(ProcEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

func (p *Process) fire(ev ProcEvent) {
	p.mu.Lock()
	hooks := append([]func(ProcEvent){}, p.hooks...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(ev)
	}
}

// NewProcess allocates a Process bound to model, with a fresh root task for
// the Workflow node in Pending state (spec.md §4.2).
func NewProcess(pid string, m *Model, env map[string]any) *Process {
	p := &Process{
		ID:      pid,
		ModelID: m.Workflow.ID,
		Tree:    m,
		State:   Pending,
		Env:     env,
		Outputs: make(map[string]any),
		Start:   nowFunc(),
		Tasks:   NewTaskTree(pid),
	}
	root := p.Tasks.NewTask(m.Tree.Root.ID, "")
	p.Tasks.RootID = root.ID
	return p
}

// RootTask returns the process's root task.
func (p *Process) RootTask() *Task { return p.Tasks.Root() }

// Cache is an in-memory index from pid to Process, backed by Store for cold
// load on cache miss (spec.md §2 component 9).
type Cache struct {
	mu    sync.RWMutex
	procs map[string]*Process
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{procs: make(map[string]*Process)}
}

// Put registers p in the cache.
func (c *Cache) Put(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.procs[p.ID] = p
}

// Get returns the cached Process for pid, if present.
func (c *Cache) Get(pid string) (*Process, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.procs[pid]
	return p, ok
}

// All returns a snapshot of every cached process, for the timeout tick scan
// (spec.md §4.6).
func (c *Cache) All() []*Process {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Process, 0, len(c.procs))
	for _, p := range c.procs {
		out = append(out, p)
	}
	return out
}

// Evict removes pid from the cache (called when the process reaches a
// terminal state and has been persisted, per spec.md §3 Process:
// "destroyed from cache when terminal and persisted").
func (c *Cache) Evict(pid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.procs, pid)
}
