package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core/config"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/path"
	"github.com/geoffjay/dispatchd/worker/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	reply  module.Reply
	runErr error
}

func (w *stubWorker) Name() string                             { return "stub" }
func (w *stubWorker) Version() string                           { return "0.0.1" }
func (w *stubWorker) Doc() string                                { return "" }
func (w *stubWorker) Path() string                               { return "/osom/api/request/stub" }
func (w *stubWorker) Commands() []msg.CommandDescriptor          { return nil }
func (w *stubWorker) Init(args ...string) error                  { return nil }
func (w *stubWorker) Open(ctx context.Context, bc module.Context) error { return nil }
func (w *stubWorker) Close(ctx context.Context) error             { return nil }
func (w *stubWorker) Run(ctx context.Context, req msg.Request) (module.Reply, error) {
	return w.reply, w.runErr
}

func newOpenHost(t *testing.T, w *stubWorker) *module.Host {
	t.Helper()
	h := module.NewHost(w)
	require.NoError(t, h.Init())
	require.NoError(t, h.Open(context.Background(), fakeModuleContext{}))
	return h
}

type fakeModuleContext struct{}

func (fakeModuleContext) Provider() string { return "discord" }

func TestInvokeHappyPath(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	host := newOpenHost(t, &stubWorker{reply: module.ContentReply("hello world")})
	r := New(bc, host)

	req := msg.Request{MsgUUID: "M1", Content: "/echo hello world"}
	resp := r.invoke(context.Background(), req)

	assert.Equal(t, "M1", resp.MsgUUID)
	assert.Equal(t, "hello world", resp.Content)
	assert.Empty(t, resp.Error)
}

func TestInvokeRunErrorBecomesResponseError(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	host := newOpenHost(t, &stubWorker{runErr: errors.New("boom")})
	r := New(bc, host)

	req := msg.Request{MsgUUID: "M2", Content: "/echo hi"}
	resp := r.invoke(context.Background(), req)

	assert.Equal(t, "M2", resp.MsgUUID)
	assert.Contains(t, resp.Error, "boom")
}

func TestInvokeFillsParsedCmdWhenMissing(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	var seen *msg.Request
	w := &capturingWorker{stubWorker: stubWorker{reply: module.ContentReply("ok")}, seen: &seen}
	host := newOpenHost(t, w)
	r := New(bc, host)

	req := msg.Request{MsgUUID: "M3", Content: "/echo,verbose=1 body text"}
	_ = r.invoke(context.Background(), req)

	require.NotNil(t, *w.seen)
	require.NotNil(t, (*w.seen).ParsedCmd)
	assert.Equal(t, "echo", (*w.seen).ParsedCmd.Command)
	assert.Equal(t, "body text", (*w.seen).ParsedCmd.Body)
	assert.Equal(t, "1", (*w.seen).ParsedCmd.Kwargs["verbose"])
}

type capturingWorker struct {
	stubWorker
	seen **msg.Request
}

func (w *capturingWorker) Run(ctx context.Context, req msg.Request) (module.Reply, error) {
	*w.seen = &req
	return w.reply, w.runErr
}

func TestInvokeNoParsedCommandIsError(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	host := newOpenHost(t, &stubWorker{})
	r := New(bc, host)

	req := msg.Request{MsgUUID: "M4", Content: "plain chat, no command"}
	resp := r.invoke(context.Background(), req)
	assert.NotEmpty(t, resp.Error)
}

// TestRunWiresRegisterRequestRouteBeforeOpen covers spec.md §2's control
// flow -- "any worker receiving a register-request re-publishes its
// descriptor" -- by checking that Run wires the register-request route
// (and so basectx.Context.Channels() would include it in the broker's
// subscribe set) even when the broker connection itself fails, since the
// route must be registered before Open is attempted, not after.
func TestRunWiresRegisterRequestRouteBeforeOpen(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	host := newOpenHost(t, &stubWorker{})
	r := New(bc, host)

	err := r.Run(context.Background())
	assert.Error(t, err) // no broker URL configured, connect fails fast

	assert.Contains(t, bc.Channels(), path.RegisterWorkerRequest)
}

// TestPollTimeoutFloor pins the arithmetic behind poll's "floor of the
// configured value" rule (spec.md §4.7): flooring a sub-second timeout to
// whole seconds yields zero, which is why poll falls back to one second
// rather than passing a zero BRPOP timeout.
func TestPollTimeoutFloor(t *testing.T) {
	assert.Equal(t, time.Duration(0), (700 * time.Millisecond).Truncate(time.Second))
}
