// Package runtime implements the worker runtime (C7 in spec.md §4.7): given
// an already-loaded worker module host (C6), it opens the base context (C9)
// and the module, publishes the
// module's descriptor, then polls its request queue, decoding, dispatching,
// and replying in a strictly serial loop.
package runtime

import (
	"context"
	"time"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core/command"
	"github.com/geoffjay/dispatchd/core/errs"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/path"
	"github.com/geoffjay/dispatchd/worker/module"
	log "github.com/sirupsen/logrus"
)

// Runtime drives one worker module through its process lifetime.
type Runtime struct {
	bc   *basectx.Context
	host *module.Host
}

// New binds a Runtime to an already-constructed base context and module
// host. The host must already be past Init (see module.Load).
func New(bc *basectx.Context, host *module.Host) *Runtime {
	return &Runtime{bc: bc, host: host}
}

// Run opens the base context and the module, publishes the register
// event, then polls until ctx is cancelled. If the base context fails to
// open, it returns that error at once; if the module fails to open, it
// closes the base context and returns. Once the module is open, it always
// runs the shutdown sequence (unregister, module close, base context
// close) before returning, however the loop or the registration ended.
func (r *Runtime) Run(ctx context.Context) error {
	// Wired before Open so basectx subscribes to this channel (spec.md §2:
	// "any worker receiving a register-request re-publishes its
	// descriptor") -- an endpoint that connects after this worker has
	// already registered needs some way to solicit it.
	r.bc.OnSync(path.RegisterWorkerRequest, r.handleRegisterRequest)

	if err := r.bc.Open(ctx); err != nil {
		return err
	}

	if err := r.host.Open(ctx, r.bc); err != nil {
		_ = r.bc.Close(ctx)
		return err
	}

	descriptor := r.host.Descriptor()
	encoded, err := msg.Encode(descriptor)
	if err != nil {
		r.shutdown(descriptor.Name)
		return err
	}
	if err := r.bc.Broker().Publish(ctx, path.RegisterWorker, encoded); err != nil {
		r.shutdown(descriptor.Name)
		return err
	}

	r.poll(ctx, descriptor.Path)
	r.shutdown(descriptor.Name)
	return nil
}

// handleRegisterRequest answers a register-request broadcast (published by
// an endpoint on connect) by re-publishing this worker's own descriptor,
// matching spec.md §2's worker-membership control flow.
func (r *Runtime) handleRegisterRequest(ctx context.Context, channel string, data []byte) error {
	descriptor := r.host.Descriptor()
	encoded, err := msg.Encode(descriptor)
	if err != nil {
		return &errs.DecodeFailureError{Kind: "WorkerDescriptor", Cause: err}
	}
	return r.bc.Broker().Publish(ctx, path.RegisterWorker, encoded)
}

// poll runs the blocking-pop loop of spec.md §4.7 until ctx is done.
func (r *Runtime) poll(ctx context.Context, requestPath string) {
	timeout := r.bc.Config().Broker.BlockingTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	// spec.md §4.7 step 1: "a timeout of redisBlockingTimeout (floor of
	// the configured value)" -- BRPOP only accepts whole seconds.
	timeout = timeout.Truncate(time.Second)
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ok, err := r.bc.Broker().BlockingPopBytes(ctx, requestPath, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Debug("worker: blocking pop error")
			continue
		}
		if !ok {
			continue // timeout, silent per spec.md §4.7
		}

		r.handle(ctx, data)
	}
}

func (r *Runtime) handle(ctx context.Context, data []byte) {
	var req msg.Request
	if err := msg.Decode(data, &req); err != nil {
		log.WithError(err).Error("worker: decode failure")
		return
	}

	if req.MsgUUID == "" {
		log.Debug("worker: request has no msgUUID, dropping")
		return
	}

	resp := r.invoke(ctx, req)
	if resp.MsgUUID != req.MsgUUID {
		log.WithError(&errs.ProtocolViolationError{
			Detail: "response uuid does not match request uuid",
		}).Error("worker: protocol violation")
		resp.MsgUUID = req.MsgUUID
	}

	encoded, err := msg.Encode(resp)
	if err != nil {
		log.WithError(&errs.DecodeFailureError{Kind: "response", Cause: err}).Error("worker: encode failure")
		return
	}

	expiry := r.bc.Config().Broker.ExpireMedium
	if expiry <= 0 {
		expiry = 8 * time.Second
	}
	expiry = expiry.Truncate(time.Second)

	if err := r.bc.Broker().LeftPushBytes(ctx, path.ResponsePath(req.MsgUUID), encoded, expiry); err != nil {
		log.WithError(err).Error("worker: failed to push response")
	}
}

// invoke parses req.Content, dispatches to the module, and always
// produces a Response -- runtime errors become Response.Error rather than
// propagating out of the loop (spec.md §4.7 step 4).
func (r *Runtime) invoke(ctx context.Context, req msg.Request) msg.Response {
	resp := msg.Response{MsgUUID: req.MsgUUID}

	if req.ParsedCmd == nil {
		if p, ok := command.Parse(req.Content, r.bc.CommandPrefix()); ok {
			req.ParsedCmd = &p
		}
	}
	if req.ParsedCmd == nil {
		resp.Error = "request has no parsed command"
		return resp
	}

	reply, err := r.host.Run(ctx, req)
	if err != nil {
		log.WithError(err).Error("worker: command runtime error")
		resp.Error = err.Error()
		return resp
	}

	resp.Content = reply.Content
	resp.Files = reply.Files
	return resp
}

// shutdown runs the unregister/close/close sequence on a fresh, bounded
// context rather than the (likely already-cancelled) context Run was
// driven with -- a cancelled context fails every broker call immediately,
// so the unregister publish would silently never go out and onClosing
// would run against a dead context. Grounded on the teacher's
// identity/cmd/main.go shutdown, which always gives its cleanup step its
// own context independent of the one the signal handler cancelled.
func (r *Runtime) shutdown(name string) {
	timeout := r.bc.Config().Broker.CloseTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := r.bc.Broker().Publish(shutdownCtx, path.UnregisterWorker, []byte(name)); err != nil {
		log.WithError(err).Warn("worker: failed to publish unregister")
	}
	if err := r.host.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("worker: module close failed")
	}
	if err := r.bc.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("worker: base context close failed")
	}
}
