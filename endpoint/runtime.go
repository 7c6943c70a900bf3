package endpoint

import (
	"context"
	"time"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/broker"
	"github.com/geoffjay/dispatchd/core"
	"github.com/geoffjay/dispatchd/core/command"
	"github.com/geoffjay/dispatchd/core/errs"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/path"
	log "github.com/sirupsen/logrus"
)

// Uploader is the subset of store/upload.Uploader the endpoint calls
// before forwarding a command to a worker (C10, spec.md §4.8 step: "A
// message-upload error before forwarding is reported back to the user as
// an error Response"). Nil-able: an endpoint configured without an audit
// store skips this step entirely.
type Uploader interface {
	UploadRequest(ctx context.Context, req msg.Request) error
}

// Runtime is the endpoint node (C8): it owns a base context, a live
// membership Table rebuilt from broker events, and forwards/receives
// chat commands through the broker.
type Runtime struct {
	bc       *basectx.Context
	table    *Table
	uploader Uploader

	forwardExpiry  time.Duration
	responseWait   time.Duration
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithUploader attaches a msg uploader (C10); omit to skip request
// persistence.
func WithUploader(u Uploader) Option {
	return func(r *Runtime) { r.uploader = u }
}

// WithForwardExpiry overrides the expiry applied to a forwarded request
// (spec.md §6 default: 30s).
func WithForwardExpiry(d time.Duration) Option {
	return func(r *Runtime) { r.forwardExpiry = d }
}

// WithResponseWait overrides how long the endpoint waits for a worker's
// reply (spec.md §6 default: 10s).
func WithResponseWait(d time.Duration) Option {
	return func(r *Runtime) { r.responseWait = d }
}

// New builds an endpoint Runtime bound to bc, wiring its subscribe routes
// for broadcast/register/unregister (spec.md §4.8).
func New(bc *basectx.Context, opts ...Option) *Runtime {
	r := &Runtime{
		bc:            bc,
		table:         NewTable(),
		forwardExpiry: 30 * time.Second,
		responseWait:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	bc.OnSync(path.Broadcast, r.handleBroadcast)
	bc.OnSync(path.RegisterWorker, r.handleRegisterWorker)
	bc.OnSync(path.UnregisterWorker, r.handleUnregisterWorker)

	return r
}

// Table exposes the endpoint's live membership table, mainly for tests
// and the help/version built-ins.
func (r *Runtime) Table() *Table { return r.table }

// Open starts the base context with onConnect wired to solicit every live
// worker's descriptor (spec.md §4.8: "On broker connect: publish provider
// on register/worker/request").
func (r *Runtime) Open(ctx context.Context) error {
	onConnect := broker.WithOnConnect(func(ctx context.Context) error {
		return r.bc.Broker().Publish(ctx, path.RegisterWorkerRequest, []byte(r.bc.Provider()))
	})
	return r.bc.Open(ctx, onConnect)
}

// Close tears down the base context.
func (r *Runtime) Close(ctx context.Context) error {
	return r.bc.Close(ctx)
}

func (r *Runtime) handleBroadcast(ctx context.Context, channel string, data []byte) error {
	log.WithField("bytes", len(data)).Debug("endpoint: broadcast received")
	return nil
}

func (r *Runtime) handleRegisterWorker(ctx context.Context, channel string, data []byte) error {
	var descriptor msg.WorkerDescriptor
	if err := msg.Decode(data, &descriptor); err != nil {
		return &errs.DecodeFailureError{Kind: "WorkerDescriptor", Cause: err}
	}

	if r.table.Exists(descriptor.Name) {
		log.WithField("worker", descriptor.Name).Warn("endpoint: re-registering known worker")
	}
	r.table.Register(descriptor)
	log.WithField("worker", descriptor.Name).Info("endpoint: worker registered")
	return nil
}

func (r *Runtime) handleUnregisterWorker(ctx context.Context, channel string, data []byte) error {
	name := string(data)
	if !r.table.Unregister(name) {
		log.WithField("worker", name).Warn("endpoint: unregister for unknown worker")
	}
	return nil
}

// HandleMessage implements spec.md §4.8's per-chat-message algorithm: it
// is the entry point the chat-provider collaborator calls for every
// inbound Request. ok reports whether a Response is expected at all (a
// non-command message, or an unmapped command key, yields ok=false and a
// zero Response -- nothing should be posted to the chat).
func (r *Runtime) HandleMessage(ctx context.Context, req msg.Request) (msg.Response, bool) {
	log.WithFields(log.Fields{"provider": req.Provider, "msg_uuid": req.MsgUUID}).Debug("endpoint: message received")

	if req.ParsedCmd == nil {
		if p, isCmd := command.Parse(req.Content, r.bc.CommandPrefix()); isCmd {
			req.ParsedCmd = &p
		} else {
			return msg.Response{}, false
		}
	}

	switch req.ParsedCmd.Command {
	case CommandVersion:
		return msg.Response{MsgUUID: req.MsgUUID, Content: core.VERSION}, true
	case CommandHelp:
		return msg.Response{MsgUUID: req.MsgUUID, Content: RenderHelp(r.bc.CommandPrefix(), r.table.Workers())}, true
	}

	workerPath, ok := r.table.Lookup(req.ParsedCmd.Command)
	if !ok {
		log.WithField("command", req.ParsedCmd.Command).Info("endpoint: unknown command")
		return msg.Response{}, false
	}

	if r.uploader != nil {
		if err := r.uploader.UploadRequest(ctx, req); err != nil {
			log.WithError(err).Error("endpoint: upload failed")
			return msg.Response{MsgUUID: req.MsgUUID, Error: err.Error()}, true
		}
	}

	return r.forward(ctx, workerPath, req), true
}

// forward pushes req onto the worker's request queue and blocks for its
// reply, implementing spec.md §4.8 steps 4-5.
func (r *Runtime) forward(ctx context.Context, workerPath string, req msg.Request) msg.Response {
	encoded, err := msg.Encode(req)
	if err != nil {
		log.WithError(err).Error("endpoint: failed to encode request")
		return msg.Response{MsgUUID: req.MsgUUID, Error: "internal error encoding request"}
	}

	if err := r.bc.Broker().LeftPushBytes(ctx, workerPath, encoded, r.forwardExpiry); err != nil {
		log.WithError(err).Error("endpoint: failed to forward request")
		return msg.Response{MsgUUID: req.MsgUUID, Error: "failed to reach worker"}
	}

	data, ok, err := r.bc.Broker().BlockingPopBytes(ctx, path.ResponsePath(req.MsgUUID), r.responseWait)
	if err != nil {
		log.WithError(err).Error("endpoint: error waiting for response")
		return msg.Response{MsgUUID: req.MsgUUID, Error: "error waiting for response"}
	}
	if !ok {
		timeoutErr := &errs.TimeoutError{Operation: "worker response"}
		log.WithError(timeoutErr).Warn("endpoint: response wait timed out")
		return msg.Response{MsgUUID: req.MsgUUID, Error: timeoutErr.Error()}
	}

	var resp msg.Response
	if err := msg.Decode(data, &resp); err != nil {
		log.WithError(err).Error("endpoint: failed to decode response")
		return msg.Response{MsgUUID: req.MsgUUID, Error: "malformed worker response"}
	}
	return resp
}
