package msg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	want := sampleRequest()

	frame, err := Encode(want)
	require.NoError(t, err)

	var got Request
	require.NoError(t, Decode(frame, &got))

	assert.Equal(t, want.Provider, got.Provider)
	assert.Equal(t, want.MsgUUID, got.MsgUUID)
	assert.Equal(t, want.Files, got.Files)
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	want := Response{MsgUUID: "uuid-9", Content: "pong"}

	frame, err := Encode(want)
	require.NoError(t, err)

	var got Response
	require.NoError(t, Decode(frame, &got))
	assert.Equal(t, want, got)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	err := Decode([]byte{0, 0}, &Response{})
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedBody(t *testing.T) {
	frame, err := Encode(Response{MsgUUID: "x"})
	require.NoError(t, err)

	err = Decode(frame[:len(frame)-1], &Response{})
	assert.Error(t, err)
}

func TestEncodeProducesSmallerOrEqualPayloadForRepetitiveContent(t *testing.T) {
	big := Request{Content: ""}
	for i := 0; i < 200; i++ {
		big.Content += "hello hello hello "
	}

	frame, err := Encode(big)
	require.NoError(t, err)

	raw, err := big.MarshalMsg(nil)
	require.NoError(t, err)

	assert.Less(t, len(frame), len(raw))
}
