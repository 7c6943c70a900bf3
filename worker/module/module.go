// Package module implements the worker module host (C6 in spec.md §4.6):
// a compile-time registry standing in for the Python original's
// import-path-driven dynamic loading (osom_api/worker/module.py's
// WorkerModule, loaded via importlib per spec.md §9 "Pluggable worker
// modules"). A worker module registers a Factory from its own package
// init(); the worker runtime (C7) loads it by name at startup and drives
// it through the UNINIT -> INITIALIZED -> OPEN -> CLOSED lifecycle.
package module

import (
	"context"
	"fmt"
	"sync"

	"github.com/geoffjay/dispatchd/core/errs"
	"github.com/geoffjay/dispatchd/core/msg"
)

// Reply is everything a worker callback may hand back besides a bare
// error, grounded on osom_api/worker/replys.py: no content, a string, one
// or more attached files, or both. This is the Go realization of the
// reply sum type SPEC_FULL.md §3.1 describes -- it lives here
// rather than in core/command because core/msg (which defines File)
// already imports core/command for Request.ParsedCmd, and core/command
// importing core/msg back would cycle.
type Reply struct {
	Content string
	Files   []msg.File
}

// ContentReply builds a text-only Reply.
func ContentReply(content string) Reply { return Reply{Content: content} }

// FileReply builds a single-file Reply.
func FileReply(f msg.File) Reply { return Reply{Files: []msg.File{f}} }

// FilesReply builds a multi-file Reply.
func FilesReply(files []msg.File) Reply { return Reply{Files: files} }

// Context is the slice of a node's base context (C9) a worker module needs
// during Open/Run: its provider identity. Satisfied structurally by
// basectx.Context without either package importing the other.
type Context interface {
	Provider() string
}

// Worker is the contract a worker module package implements. Name,
// Version, Doc, Path, and Commands are read each time Host.Descriptor
// builds the module's WorkerDescriptor (after Init, since a module may
// build its command table there); they must not change afterward
// (spec.md §3: "immutable for the worker's lifetime").
type Worker interface {
	Name() string
	Version() string
	Doc() string
	Path() string
	Commands() []msg.CommandDescriptor

	Init(args ...string) error
	Open(ctx context.Context, bc Context) error
	Close(ctx context.Context) error
	Run(ctx context.Context, req msg.Request) (Reply, error)
}

// State is one position in the module host's lifecycle state machine.
type State int

// States, in the order spec.md §4.6 names them.
const (
	StateUninit State = iota
	StateInitialized
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateInitialized:
		return "initialized"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Host drives a Worker through its lifecycle and exposes its descriptor.
// A Host is not safe for concurrent Run calls from multiple goroutines
// (the worker runtime's poll loop is single-goroutine per spec.md §5, so
// this is enforced by construction rather than by an internal mutex on
// Run -- Init/Open/Close still take the lock since they run from
// lifecycle code that could race with a shutdown signal).
type Host struct {
	mu    sync.Mutex
	name  string
	state State
	inner Worker
	erred bool
}

// NewHost wraps w with the state machine, named for error messages by the
// worker's own Name(), read once here.
func NewHost(w Worker) *Host {
	return &Host{name: w.Name(), inner: w, state: StateUninit}
}

// State reports the host's current lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Descriptor builds the WorkerDescriptor this module publishes on
// registration (spec.md §4.7: "build a WorkerDescriptor from the
// module").
func (h *Host) Descriptor() msg.WorkerDescriptor {
	return msg.WorkerDescriptor{
		Name:     h.inner.Name(),
		Version:  h.inner.Version(),
		Doc:      h.inner.Doc(),
		Path:     h.inner.Path(),
		Commands: h.inner.Commands(),
	}
}

// Init runs the module's synchronous init hook with trailing free-form
// positional options, transitioning UNINIT -> INITIALIZED. Calling Init
// more than once is an error.
func (h *Host) Init(args ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateUninit {
		return &errs.ProtocolViolationError{Detail: fmt.Sprintf("%s: init called in state %s", h.name, h.state)}
	}
	if err := h.inner.Init(args...); err != nil {
		h.erred = true
		return &errs.CommandRuntimeError{Module: h.name, Hook: "init", Cause: err}
	}
	h.state = StateInitialized
	return nil
}

// Open runs the module's asynchronous open hook, transitioning
// INITIALIZED -> OPEN. Calling Open twice, or before Init, is an error.
func (h *Host) Open(ctx context.Context, bc Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitialized {
		return &errs.ProtocolViolationError{Detail: fmt.Sprintf("%s: open called in state %s", h.name, h.state)}
	}
	if err := h.inner.Open(ctx, bc); err != nil {
		h.erred = true
		return &errs.CommandRuntimeError{Module: h.name, Hook: "open", Cause: err}
	}
	h.state = StateOpen
	return nil
}

// Run invokes the module's run hook. Only legal in state OPEN. Errors
// (including a recovered panic) are wrapped as a CommandRuntimeError
// rather than propagated, so the worker runtime can always convert them
// into a Response (spec.md §4.7 step 4).
func (h *Host) Run(ctx context.Context, req msg.Request) (reply Reply, err error) {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	if state != StateOpen {
		return Reply{}, &errs.ProtocolViolationError{Detail: fmt.Sprintf("%s: run called in state %s", h.name, state)}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &errs.CommandRuntimeError{Module: h.name, Hook: "run", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	reply, err = h.inner.Run(ctx, req)
	if err != nil {
		err = &errs.CommandRuntimeError{Module: h.name, Hook: "run", Cause: err}
	}
	return reply, err
}

// Close runs the module's close hook, transitioning to CLOSED. Close is
// idempotent from OPEN (or after an Init/Open error); from any other state
// (never initialized, or initialized but never opened) it is an error.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateClosed {
		return nil
	}
	if h.state != StateOpen && !h.erred {
		return &errs.ProtocolViolationError{Detail: fmt.Sprintf("%s: close called in state %s", h.name, h.state)}
	}

	err := h.inner.Close(ctx)
	h.state = StateClosed
	if err != nil {
		return &errs.CommandRuntimeError{Module: h.name, Hook: "close", Cause: err}
	}
	return nil
}

// Factory constructs a fresh, unconfigured Worker instance. Registered by
// a worker module package's own init() function.
type Factory func() Worker

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds factory to the process-wide module registry under name,
// the Go stand-in for an import path (spec.md §4.6 / §9). Calling
// Register twice for the same name is a programming error and panics at
// package-init time, matching the fail-fast convention of an
// init()-time registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("module: %s already registered", name))
	}
	registry[name] = factory
}

// Load looks up name in the registry, constructs a Worker, and drives it
// through Init. isolate is accepted for interface parity with the
// original's importlib.import_module(isolate=...) but is a no-op here:
// every worker module already runs in its own OS process (spec.md §4.6
// supplement), so there is no shared-namespace pollution to isolate from.
func Load(name string, isolate bool, args ...string) (*Host, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, &errs.DecodeFailureError{Kind: "module", Cause: fmt.Errorf("no module registered for %q", name)}
	}

	_ = isolate // documented no-op, see doc comment above

	host := NewHost(factory())
	if err := host.Init(args...); err != nil {
		return nil, err
	}
	return host, nil
}
