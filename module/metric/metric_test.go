package metric

import (
	"context"
	"testing"

	"github.com/geoffjay/dispatchd/core/command"
	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct{ provider string }

func (f fakeContext) Provider() string { return f.provider }

func TestStatusReportsRuntimeMetrics(t *testing.T) {
	w := &Worker{}
	require.NoError(t, w.Init())
	require.NoError(t, w.Open(context.Background(), fakeContext{provider: "test"}))
	defer w.Close(context.Background())

	parsed, ok := command.Parse("/status", command.DefaultPrefix)
	require.True(t, ok)

	reply, err := w.Run(context.Background(), msg.Request{ParsedCmd: &parsed})
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "uptime=")
	assert.Contains(t, reply.Content, "goroutines=")
}

func TestMetricCommandsAfterInit(t *testing.T) {
	w := &Worker{}
	require.NoError(t, w.Init())

	cmds := w.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "status", cmds[0].Key)
}

func TestMetricRunWithoutParsedCommandErrors(t *testing.T) {
	w := &Worker{}
	require.NoError(t, w.Init())
	require.NoError(t, w.Open(context.Background(), fakeContext{}))

	_, err := w.Run(context.Background(), msg.Request{})
	assert.Error(t, err)
}
