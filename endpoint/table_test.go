package endpoint

import (
	"testing"

	"github.com/geoffjay/dispatchd/core/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReRegistrationReplacesCommands is scenario 4 from spec.md §8: after
// A registers {x}, then re-registers {y}, the table has y -> A's path and
// x absent.
func TestReRegistrationReplacesCommands(t *testing.T) {
	table := NewTable()
	table.Register(msg.WorkerDescriptor{
		Name: "A", Path: "/osom/api/request/A",
		Commands: []msg.CommandDescriptor{{Key: "x"}},
	})
	table.Register(msg.WorkerDescriptor{
		Name: "A", Path: "/osom/api/request/A",
		Commands: []msg.CommandDescriptor{{Key: "y"}},
	})

	_, xOk := table.Lookup("x")
	assert.False(t, xOk)

	yPath, yOk := table.Lookup("y")
	require.True(t, yOk)
	assert.Equal(t, "/osom/api/request/A", yPath)
}

func TestUnregisterRemovesAllCommands(t *testing.T) {
	table := NewTable()
	table.Register(msg.WorkerDescriptor{
		Name: "A", Path: "/osom/api/request/A",
		Commands: []msg.CommandDescriptor{{Key: "x"}, {Key: "z"}},
	})

	require.True(t, table.Unregister("A"))
	_, xOk := table.Lookup("x")
	_, zOk := table.Lookup("z")
	assert.False(t, xOk)
	assert.False(t, zOk)
	assert.False(t, table.Exists("A"))
}

func TestUnregisterUnknownWorkerReportsFalse(t *testing.T) {
	table := NewTable()
	assert.False(t, table.Unregister("ghost"))
}

func TestLastWriterWinsAcrossWorkers(t *testing.T) {
	table := NewTable()
	table.Register(msg.WorkerDescriptor{Name: "A", Path: "/osom/api/request/A", Commands: []msg.CommandDescriptor{{Key: "x"}}})
	table.Register(msg.WorkerDescriptor{Name: "B", Path: "/osom/api/request/B", Commands: []msg.CommandDescriptor{{Key: "x"}}})

	p, ok := table.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "/osom/api/request/B", p)
}

// TestRenderHelp is scenario 6 from spec.md §8.
func TestRenderHelp(t *testing.T) {
	workers := []msg.WorkerDescriptor{
		{Name: "A", Commands: []msg.CommandDescriptor{{Key: "x", Doc: "do X"}}},
		{Name: "B", Commands: []msg.CommandDescriptor{{Key: "y", Doc: "do Y"}}},
	}
	text := RenderHelp("/", workers)

	assert.Contains(t, text, "/version")
	assert.Contains(t, text, "/help")
	assert.Contains(t, text, "/x - do X")
	assert.Contains(t, text, "/y - do Y")
}
