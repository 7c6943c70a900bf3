package module

import (
	"fmt"
	"reflect"

	"github.com/geoffjay/dispatchd/core/command"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/param"
)

// CommandHandler is one command a worker module exposes: a bound Go
// function (see core/param's binding rules) plus the documentation a
// CommandDescriptor needs. MetaByIndex supplies the bound name/doc/default
// for each configurable parameter, keyed by its position in Handler's
// signature (core/param.Describe's metaByIndex argument).
type CommandHandler struct {
	Key         string
	Doc         string
	Handler     interface{}
	MetaByIndex map[int]param.Meta
}

type registeredCommand struct {
	doc         string
	descriptors []param.Descriptor
	handler     reflect.Value
}

// CommandTable is the dynamic-parameter-binding plan spec.md §9 describes:
// built once at worker registration time by reflecting every handler's
// signature, then applied with no further reflection at dispatch time
// (besides the reflect.Value.Call itself, which Go has no way around).
type CommandTable struct {
	order    []string
	commands map[string]registeredCommand
}

// NewCommandTable returns an empty table.
func NewCommandTable() *CommandTable {
	return &CommandTable{commands: make(map[string]registeredCommand)}
}

// Register reflects h.Handler's signature and adds it to the table.
func (t *CommandTable) Register(h CommandHandler) error {
	descriptors, err := param.Describe(h.Handler, h.MetaByIndex)
	if err != nil {
		return fmt.Errorf("module: command %q: %w", h.Key, err)
	}
	if _, exists := t.commands[h.Key]; !exists {
		t.order = append(t.order, h.Key)
	}
	t.commands[h.Key] = registeredCommand{
		doc:         h.Doc,
		descriptors: descriptors,
		handler:     reflect.ValueOf(h.Handler),
	}
	return nil
}

// Descriptors renders the table as the CommandDescriptor slice a
// WorkerDescriptor publishes, in registration order.
func (t *CommandTable) Descriptors() []msg.CommandDescriptor {
	out := make([]msg.CommandDescriptor, 0, len(t.order))
	for _, key := range t.order {
		cmd := t.commands[key]
		params := make([]msg.ParamDescriptor, 0, len(cmd.descriptors))
		for _, d := range cmd.descriptors {
			if d.IsRuntime() {
				continue
			}
			params = append(params, msg.ParamDescriptor{
				Name:       d.Name,
				Doc:        d.Doc,
				Default:    d.Default,
				HasDefault: d.HasDefault,
			})
		}
		out = append(out, msg.CommandDescriptor{Key: key, Doc: cmd.doc, Params: params})
	}
	return out
}

// Dispatch binds req/parsed to the registered handler for parsed.Command
// and invokes it, translating its return values into a Reply. Handlers
// may return any of: nothing, an error, a string, a Reply, a msg.File, or
// a []msg.File, optionally paired with a trailing error -- the original
// system's worker/replys.py reply union (SPEC_FULL.md §3.1).
func (t *CommandTable) Dispatch(req msg.Request, parsed command.Parsed) (Reply, error) {
	cmd, ok := t.commands[parsed.Command]
	if !ok {
		return Reply{}, fmt.Errorf("module: no handler registered for command %q", parsed.Command)
	}

	args, err := param.Bind(cmd.descriptors, req, parsed)
	if err != nil {
		return Reply{}, err
	}

	out := cmd.handler.Call(args)
	return translateReturn(out)
}

func translateReturn(out []reflect.Value) (Reply, error) {
	var reply Reply
	var callErr error

	for _, v := range out {
		if !v.IsValid() {
			continue
		}
		switch val := v.Interface().(type) {
		case nil:
		case error:
			callErr = val
		case string:
			reply.Content = val
		case Reply:
			reply = val
		case msg.File:
			reply.Files = append(reply.Files, val)
		case []msg.File:
			reply.Files = val
		}
	}
	return reply, callErr
}
