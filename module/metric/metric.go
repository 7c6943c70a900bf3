// Package metric is a worker module that reports the host process's own
// runtime metrics (uptime, goroutine count, memory in use) on request,
// standing in for plantd's module/metric worker -- grounded on
// spec.md §4.6/§4.7's module lifecycle, generalized from plantd's metrics
// collection to the single `status` command this fabric exposes.
package metric

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/worker/module"

	log "github.com/sirupsen/logrus"
)

func init() {
	module.Register("metric", func() module.Worker { return &Worker{} })
}

// Worker reports process-level runtime metrics.
type Worker struct {
	table   *module.CommandTable
	started time.Time
}

var _ module.Worker = (*Worker)(nil)

func (w *Worker) Name() string    { return "metric" }
func (w *Worker) Version() string { return "1.0.0" }
func (w *Worker) Doc() string     { return "reports this worker's own runtime metrics" }
func (w *Worker) Path() string    { return "/osom/api/request/metric" }

func (w *Worker) Commands() []msg.CommandDescriptor {
	if w.table == nil {
		return nil
	}
	return w.table.Descriptors()
}

// Init builds the command table and records the worker's start time.
func (w *Worker) Init(args ...string) error {
	w.started = time.Now()

	table := module.NewCommandTable()
	if err := table.Register(module.CommandHandler{
		Key: "status",
		Doc: "status - report uptime, goroutine count, and memory in use",
		Handler: func() module.Reply {
			return module.ContentReply(w.report())
		},
	}); err != nil {
		return err
	}
	w.table = table
	return nil
}

func (w *Worker) Open(ctx context.Context, bc module.Context) error {
	log.WithField("provider", bc.Provider()).Debug("metric: opened")
	return nil
}

func (w *Worker) Close(ctx context.Context) error { return nil }

func (w *Worker) Run(ctx context.Context, req msg.Request) (module.Reply, error) {
	if req.ParsedCmd == nil {
		return module.Reply{}, fmt.Errorf("metric: request has no parsed command")
	}
	return w.table.Dispatch(req, *req.ParsedCmd)
}

func (w *Worker) report() string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return fmt.Sprintf(
		"uptime=%s goroutines=%d alloc=%dKB sys=%dKB",
		time.Since(w.started).Truncate(time.Second),
		runtime.NumGoroutine(),
		mem.Alloc/1024,
		mem.Sys/1024,
	)
}
