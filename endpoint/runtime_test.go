package endpoint

import (
	"context"
	"testing"

	"github.com/geoffjay/dispatchd/basectx"
	"github.com/geoffjay/dispatchd/core"
	"github.com/geoffjay/dispatchd/core/config"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/geoffjay/dispatchd/core/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *Runtime {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	return New(bc)
}

func TestHandleMessageVersionBuiltin(t *testing.T) {
	r := newTestRuntime()
	resp, ok := r.HandleMessage(context.Background(), msg.Request{MsgUUID: "M1", Content: "/version"})
	require.True(t, ok)
	assert.Equal(t, core.VERSION, resp.Content)
}

func TestHandleMessageHelpBuiltin(t *testing.T) {
	r := newTestRuntime()
	r.table.Register(msg.WorkerDescriptor{
		Name: "A", Path: "/osom/api/request/A",
		Commands: []msg.CommandDescriptor{{Key: "x", Doc: "do X"}},
	})

	resp, ok := r.HandleMessage(context.Background(), msg.Request{MsgUUID: "M2", Content: "/help"})
	require.True(t, ok)
	assert.Contains(t, resp.Content, "/x - do X")
}

// TestHandleMessageUnknownCommandIsIgnored is scenario 3 from spec.md §8:
// an unmapped command produces no response at all.
func TestHandleMessageUnknownCommandIsIgnored(t *testing.T) {
	r := newTestRuntime()
	_, ok := r.HandleMessage(context.Background(), msg.Request{MsgUUID: "M3", Content: "/nope anything"})
	assert.False(t, ok)
}

func TestHandleMessageNonCommandIsIgnored(t *testing.T) {
	r := newTestRuntime()
	_, ok := r.HandleMessage(context.Background(), msg.Request{MsgUUID: "M4", Content: "just chatting"})
	assert.False(t, ok)
}

type fakeUploader struct {
	called bool
	err    error
}

func (f *fakeUploader) UploadRequest(ctx context.Context, req msg.Request) error {
	f.called = true
	return f.err
}

func TestHandleMessageUploadFailureBecomesErrorResponse(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	uploader := &fakeUploader{err: assertErr{}}
	r := New(bc, WithUploader(uploader))
	r.table.Register(msg.WorkerDescriptor{
		Name: "A", Path: "/osom/api/request/A",
		Commands: []msg.CommandDescriptor{{Key: "x"}},
	})

	resp, ok := r.HandleMessage(context.Background(), msg.Request{MsgUUID: "M5", Content: "/x body"})
	require.True(t, ok)
	assert.True(t, uploader.called)
	assert.NotEmpty(t, resp.Error)
}

type assertErr struct{}

func (assertErr) Error() string { return "upload exploded" }

// TestNewSubscribesToMembershipChannels guards the bug where the base
// context's broker subscribed only to its default broadcast channel no
// matter what routes New wired up -- register/worker and unregister/worker
// events would never be delivered, so the endpoint's command table would
// stay permanently empty. basectx.Context.Channels() is exactly the list
// Open derives its broker subscription from.
func TestNewSubscribesToMembershipChannels(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	New(bc)

	assert.ElementsMatch(t, []string{
		path.Broadcast,
		path.RegisterWorker,
		path.UnregisterWorker,
	}, bc.Channels())
}

// TestRegisterAndUnregisterThroughBrokerDispatch drives a worker's
// register/unregister events through basectx.Context.Dispatch -- the same
// routing a live broker subscription would use -- rather than poking
// Table.Register/Unregister directly, so a wrong channel constant or a
// route wired to the wrong handler would fail this test the way it would
// fail in production.
func TestRegisterAndUnregisterThroughBrokerDispatch(t *testing.T) {
	bc := basectx.New(config.NodeConfig{CommandPrefix: "/"}, nil, nil)
	r := New(bc)

	descriptor := msg.WorkerDescriptor{
		Name: "default",
		Path: "/osom/api/request/default",
		Commands: []msg.CommandDescriptor{
			{Key: "echo", Doc: "echo the message body"},
		},
	}
	encoded, err := msg.Encode(descriptor)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bc.Dispatch(ctx, path.RegisterWorker, encoded))

	workerPath, ok := r.table.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, descriptor.Path, workerPath)

	require.NoError(t, bc.Dispatch(ctx, path.UnregisterWorker, []byte("default")))
	_, ok = r.table.Lookup("echo")
	assert.False(t, ok)
}
