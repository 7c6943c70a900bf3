package msg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

func sampleRequest() Request {
	return Request{
		Provider:  "discord",
		MessageID: "msg-1",
		ChannelID: "chan-1",
		Content:   "/chat,model=gpt-4 hello",
		Username:  "alice",
		Nickname:  "Al",
		Files: []File{
			{UUID: "f-1", Name: "a.png", MimeType: "image/png", Data: []byte{1, 2, 3}},
		},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		MsgUUID:   "uuid-1",
	}
}

func TestRequestRoundTrip(t *testing.T) {
	want := sampleRequest()

	raw, err := want.MarshalMsg(nil)
	require.NoError(t, err)

	var got Request
	_, err = got.UnmarshalMsg(raw)
	require.NoError(t, err)

	assert.Equal(t, want.Provider, got.Provider)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.Files, got.Files)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.MsgUUID, got.MsgUUID)
}

func TestResponseRoundTrip(t *testing.T) {
	want := Response{
		MsgUUID:   "uuid-2",
		Content:   "hi back",
		CreatedAt: time.Unix(1700000001, 0).UTC(),
	}

	raw, err := want.MarshalMsg(nil)
	require.NoError(t, err)

	var got Response
	_, err = got.UnmarshalMsg(raw)
	require.NoError(t, err)

	assert.Equal(t, want.MsgUUID, got.MsgUUID)
	assert.Equal(t, want.Content, got.Content)
	assert.Empty(t, got.Error)
	assert.Equal(t, "hi back", got.ReplyContent())
}

func TestResponseHasErrorPrefersError(t *testing.T) {
	r := Response{Content: "ignored", Error: "boom"}
	assert.True(t, r.HasError())
	assert.Equal(t, "boom", r.ReplyContent())
}

func TestWorkerDescriptorRoundTrip(t *testing.T) {
	want := WorkerDescriptor{
		Name:    "gpt",
		Version: "1.0.0",
		Doc:     "chat completion worker",
		Path:    "/osom/api/worker/gpt",
		Commands: []CommandDescriptor{
			{
				Key: "chat",
				Doc: "ask the model",
				Params: []ParamDescriptor{
					{Name: "model", Doc: "model name", Default: "gpt-4", HasDefault: true},
				},
			},
		},
	}

	raw, err := want.MarshalMsg(nil)
	require.NoError(t, err)

	var got WorkerDescriptor
	_, err = got.UnmarshalMsg(raw)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

// TestUnmarshalSkipsUnknownField proves the codec tolerates a field added
// by a newer writer: a synthetic trailing key is appended to an otherwise
// valid Request payload and must be skipped rather than rejected.
func TestUnmarshalSkipsUnknownField(t *testing.T) {
	want := sampleRequest()
	raw, err := want.MarshalMsg(nil)
	require.NoError(t, err)

	sz, rest, err := msgp.ReadMapHeaderBytes(raw)
	require.NoError(t, err)

	patched := msgp.AppendMapHeader(nil, sz+1)
	patched = append(patched, rest...)
	patched = msgp.AppendString(patched, "future_field")
	patched = msgp.AppendString(patched, "future_value")

	var got Request
	_, err = got.UnmarshalMsg(patched)
	require.NoError(t, err)
	assert.Equal(t, want.MsgUUID, got.MsgUUID)
}

// TestUnmarshalDefaultsMissingField proves an older payload missing a
// field a newer reader knows about decodes with that field at its zero
// value instead of erroring.
func TestUnmarshalDefaultsMissingField(t *testing.T) {
	old := Response{MsgUUID: "uuid-3", Content: "legacy"}
	raw, err := old.MarshalMsg(nil)
	require.NoError(t, err)

	sz, rest, err := msgp.ReadMapHeaderBytes(raw)
	require.NoError(t, err)
	require.Greater(t, sz, uint32(0))

	// Drop the last key/value pair (created_at) to simulate a payload
	// written before that field existed.
	var pairs [][]byte
	cur := rest
	for i := uint32(0); i < sz; i++ {
		start := cur
		var err error
		_, cur, err = msgp.ReadStringBytes(cur)
		require.NoError(t, err)
		cur, err = msgp.Skip(cur)
		require.NoError(t, err)
		pairs = append(pairs, start[:len(start)-len(cur)])
	}

	trimmed := msgp.AppendMapHeader(nil, sz-1)
	for _, pair := range pairs[:len(pairs)-1] {
		trimmed = append(trimmed, pair...)
	}

	var got Response
	_, err = got.UnmarshalMsg(trimmed)
	require.NoError(t, err)
	assert.Equal(t, "uuid-3", got.MsgUUID)
	assert.True(t, got.CreatedAt.IsZero())
}
