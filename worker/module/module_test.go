package module

import (
	"context"
	"errors"
	"testing"

	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct{ provider string }

func (f fakeContext) Provider() string { return f.provider }

type fakeWorker struct {
	initErr, openErr, closeErr, runErr error
	initArgs                           []string
	opened, closed                     bool
	reply                              Reply
}

func (w *fakeWorker) Name() string    { return "fake" }
func (w *fakeWorker) Version() string { return "1.0.0" }
func (w *fakeWorker) Doc() string     { return "a fake worker" }
func (w *fakeWorker) Path() string    { return "/osom/api/request/fake" }
func (w *fakeWorker) Commands() []msg.CommandDescriptor {
	return []msg.CommandDescriptor{{Key: "echo"}}
}

func (w *fakeWorker) Init(args ...string) error {
	w.initArgs = args
	return w.initErr
}

func (w *fakeWorker) Open(ctx context.Context, bc Context) error {
	w.opened = w.openErr == nil
	return w.openErr
}

func (w *fakeWorker) Close(ctx context.Context) error {
	w.closed = true
	return w.closeErr
}

func (w *fakeWorker) Run(ctx context.Context, req msg.Request) (Reply, error) {
	if w.runErr != nil {
		return Reply{}, w.runErr
	}
	return w.reply, nil
}

func TestHostLifecycleHappyPath(t *testing.T) {
	w := &fakeWorker{reply: ContentReply("pong")}
	h := NewHost(w)
	assert.Equal(t, StateUninit, h.State())

	require.NoError(t, h.Init("a", "b"))
	assert.Equal(t, []string{"a", "b"}, w.initArgs)
	assert.Equal(t, StateInitialized, h.State())

	require.NoError(t, h.Open(context.Background(), fakeContext{provider: "discord"}))
	assert.True(t, w.opened)
	assert.Equal(t, StateOpen, h.State())

	reply, err := h.Run(context.Background(), msg.Request{})
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Content)

	require.NoError(t, h.Close(context.Background()))
	assert.True(t, w.closed)
	assert.Equal(t, StateClosed, h.State())

	// Close is idempotent.
	require.NoError(t, h.Close(context.Background()))
}

func TestHostRunBeforeOpenIsProtocolViolation(t *testing.T) {
	h := NewHost(&fakeWorker{})
	require.NoError(t, h.Init())

	_, err := h.Run(context.Background(), msg.Request{})
	assert.Error(t, err)
}

func TestHostOpenTwiceIsError(t *testing.T) {
	h := NewHost(&fakeWorker{})
	require.NoError(t, h.Init())
	require.NoError(t, h.Open(context.Background(), fakeContext{}))

	err := h.Open(context.Background(), fakeContext{})
	assert.Error(t, err)
}

func TestHostCloseBeforeInitIsError(t *testing.T) {
	h := NewHost(&fakeWorker{})
	err := h.Close(context.Background())
	assert.Error(t, err)
}

// TestHostCloseAfterInitWithoutOpenIsError covers spec.md §4.6: "closing
// from non-OPEN is an error" for the case where init succeeded cleanly but
// open was never attempted (no error to grant idempotent cleanup either).
func TestHostCloseAfterInitWithoutOpenIsError(t *testing.T) {
	h := NewHost(&fakeWorker{})
	require.NoError(t, h.Init())

	err := h.Close(context.Background())
	assert.Error(t, err)
}

// TestHostCloseAfterOpenErrorIsIdempotentCleanup covers spec.md §4.6:
// close "is idempotent from OPEN or after errors" -- a failed Open still
// permits Close to run the module's cleanup hook rather than rejecting it.
func TestHostCloseAfterOpenErrorIsIdempotentCleanup(t *testing.T) {
	w := &fakeWorker{openErr: errors.New("boom")}
	h := NewHost(w)
	require.NoError(t, h.Init())

	err := h.Open(context.Background(), fakeContext{})
	require.Error(t, err)
	assert.Equal(t, StateInitialized, h.State())

	require.NoError(t, h.Close(context.Background()))
	assert.True(t, w.closed)
}

func TestHostInitErrorWrapsRuntimeError(t *testing.T) {
	h := NewHost(&fakeWorker{initErr: errors.New("boom")})
	err := h.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime error in fake.init")
}

func TestHostRunRecoversPanic(t *testing.T) {
	h := NewHost(&fakeWorker{})
	require.NoError(t, h.Init())
	require.NoError(t, h.Open(context.Background(), fakeContext{}))

	// Swap the inner worker's Run behavior by wrapping it in a panicking
	// adapter to exercise Host.Run's recover.
	h.inner = &panickingWorker{fakeWorker: h.inner.(*fakeWorker)}

	_, err := h.Run(context.Background(), msg.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

type panickingWorker struct {
	*fakeWorker
}

func (w *panickingWorker) Run(ctx context.Context, req msg.Request) (Reply, error) {
	panic("kaboom")
}

func TestRegisterAndLoad(t *testing.T) {
	Register("test-echo", func() Worker { return &fakeWorker{} })

	host, err := Load("test-echo", false, "opt1")
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, host.State())

	_, err = Load("does-not-exist", false)
	assert.Error(t, err)
}

func TestRegisterTwicePanics(t *testing.T) {
	Register("test-dup", func() Worker { return &fakeWorker{} })
	assert.Panics(t, func() {
		Register("test-dup", func() Worker { return &fakeWorker{} })
	})
}
