// Package echo is a worker module that echoes its input back to the
// caller, grounded on spec.md §8 scenario 1 ("Echo worker round trip"):
// command `echo`, handler returning its `body` parameter as content.
package echo

import (
	"context"
	"fmt"

	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/param"
	"github.com/geoffjay/dispatchd/worker/module"

	log "github.com/sirupsen/logrus"
)

func init() {
	module.Register("echo", func() module.Worker { return &Worker{} })
}

// Worker implements module.Worker. It keeps no state besides the command
// table built at construction time.
type Worker struct {
	table *module.CommandTable
}

var _ module.Worker = (*Worker)(nil)

func (w *Worker) Name() string    { return "echo" }
func (w *Worker) Version() string { return "1.0.0" }
func (w *Worker) Doc() string     { return "echoes its input back to the caller" }
func (w *Worker) Path() string    { return "/osom/api/request/echo" }

func (w *Worker) Commands() []msg.CommandDescriptor {
	if w.table == nil {
		return nil
	}
	return w.table.Descriptors()
}

// Init builds the command table. It runs once, before Open.
func (w *Worker) Init(args ...string) error {
	table := module.NewCommandTable()
	if err := table.Register(module.CommandHandler{
		Key: "echo",
		Doc: "echo <body> - reply with body",
		Handler: func(body param.Body) module.Reply {
			return module.ContentReply(string(body))
		},
	}); err != nil {
		return err
	}
	w.table = table
	return nil
}

// Open has nothing to set up; echo needs no broker/DB/blob access beyond
// what the runtime already provides.
func (w *Worker) Open(ctx context.Context, bc module.Context) error {
	log.WithField("provider", bc.Provider()).Debug("echo: opened")
	return nil
}

func (w *Worker) Close(ctx context.Context) error { return nil }

// Run dispatches req's parsed command through the table.
func (w *Worker) Run(ctx context.Context, req msg.Request) (module.Reply, error) {
	if req.ParsedCmd == nil {
		return module.Reply{}, fmt.Errorf("echo: request has no parsed command")
	}
	return w.table.Dispatch(req, *req.ParsedCmd)
}
