// Package endpoint implements the endpoint runtime (C8 in spec.md §4.8):
// the dynamic command table built from worker register/unregister
// broadcasts, and the per-chat-message dispatch loop that parses a
// command, forwards it to the owning worker, and waits for a correlated
// reply.
package endpoint

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/geoffjay/dispatchd/core/msg"
)

// Builtin command keys always present on every endpoint, handled locally
// without a worker round trip (spec.md §3).
const (
	CommandVersion = "version"
	CommandHelp    = "help"
)

// Table is the endpoint-local worker membership table (spec.md §3): a
// mapping workerName -> WorkerDescriptor, and a derived mapping
// commandKey -> workerPath. Single-writer, guarded by a mutex since
// register/unregister events may interleave with the chat-message
// dispatch loop on the same dispatcher (spec.md §5).
type Table struct {
	mu       sync.RWMutex
	workers  map[string]msg.WorkerDescriptor
	commands map[string]string // command key -> worker path
}

// NewTable returns an empty membership table.
func NewTable() *Table {
	return &Table{
		workers:  make(map[string]msg.WorkerDescriptor),
		commands: make(map[string]string),
	}
}

// Register installs descriptor, first removing any commands a prior
// descriptor under the same name had contributed (spec.md §3: "when name
// is re-registered, its previous commands are removed before its new
// commands are installed"). Command key collisions across *different*
// worker names follow "last writer wins" (spec.md §9) -- this function
// does not detect or warn about that case, and neither does its caller
// Runtime.handleRegisterWorker, which only logs a same-name re-registration.
func (t *Table) Register(descriptor msg.WorkerDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prior, exists := t.workers[descriptor.Name]; exists {
		for _, c := range prior.Commands {
			delete(t.commands, c.Key)
		}
	}

	t.workers[descriptor.Name] = descriptor
	for _, c := range descriptor.Commands {
		t.commands[c.Key] = descriptor.Path
	}
}

// Unregister removes name's descriptor and every command key it owned.
// Reports whether name was present.
func (t *Table) Unregister(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	descriptor, exists := t.workers[name]
	if !exists {
		return false
	}
	for _, c := range descriptor.Commands {
		// Only remove the mapping if it still points at this worker's
		// path -- a later re-registration of the same command key by a
		// different worker must not be clobbered by a stale unregister.
		if t.commands[c.Key] == descriptor.Path {
			delete(t.commands, c.Key)
		}
	}
	delete(t.workers, name)
	return true
}

// Exists reports whether name has a live descriptor.
func (t *Table) Exists(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.workers[name]
	return ok
}

// Lookup returns the worker path that owns commandKey, if any.
func (t *Table) Lookup(commandKey string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.commands[commandKey]
	return p, ok
}

// Workers returns a snapshot of every live WorkerDescriptor, sorted by
// name for deterministic help rendering.
func (t *Table) Workers() []msg.WorkerDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]msg.WorkerDescriptor, 0, len(t.workers))
	for _, d := range t.workers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RenderHelp builds the textual listing spec.md §4.8 and example 6
// describe: the built-ins first, then every registered worker's commands
// with their documentation, worker order implementation-defined (here,
// alphabetical by name) but command order within a worker preserved.
func RenderHelp(prefix string, workers []msg.WorkerDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s - show the running version\n", prefix, CommandVersion)
	fmt.Fprintf(&b, "%s%s - show this message\n", prefix, CommandHelp)

	for _, w := range workers {
		for _, c := range w.Commands {
			if c.Doc != "" {
				fmt.Fprintf(&b, "%s%s - %s\n", prefix, c.Key, c.Doc)
			} else {
				fmt.Fprintf(&b, "%s%s\n", prefix, c.Key)
			}
		}
	}
	return b.String()
}
