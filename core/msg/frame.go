package msg

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Marshaler is satisfied by every type in this package that has a
// hand-written MarshalMsg/UnmarshalMsg pair.
type Marshaler interface {
	MarshalMsg(b []byte) ([]byte, error)
}

// Unmarshaler is the pointer-receiver counterpart of Marshaler.
type Unmarshaler interface {
	UnmarshalMsg(bts []byte) ([]byte, error)
}

// lengthPrefixSize is the width, in bytes, of the frame's length prefix.
const lengthPrefixSize = 4

var (
	encoderPool sync.Pool
	decoderPool sync.Pool
)

func getEncoder() (*zstd.Encoder, error) {
	if e, ok := encoderPool.Get().(*zstd.Encoder); ok {
		return e, nil
	}
	return zstd.NewWriter(nil)
}

func putEncoder(e *zstd.Encoder) {
	encoderPool.Put(e)
}

func getDecoder() (*zstd.Decoder, error) {
	if d, ok := decoderPool.Get().(*zstd.Decoder); ok {
		return d, nil
	}
	return zstd.NewReader(nil)
}

func putDecoder(d *zstd.Decoder) {
	decoderPool.Put(d)
}

// Encode serializes v to msgpack, zstd-compresses it, and prefixes the
// result with a 4-byte big-endian length of the compressed payload. This
// is the "compressed, length-prefixed binary representation" spec.md
// §4.3 asks the codec to produce.
func Encode(v Marshaler) ([]byte, error) {
	raw, err := v.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}

	enc, err := getEncoder()
	if err != nil {
		return nil, err
	}
	defer putEncoder(enc)

	compressed := enc.EncodeAll(raw, nil)

	out := make([]byte, lengthPrefixSize+len(compressed))
	binary.BigEndian.PutUint32(out, uint32(len(compressed)))
	copy(out[lengthPrefixSize:], compressed)
	return out, nil
}

// Decode reverses Encode into v, which must be a pointer to a type
// implementing Unmarshaler (e.g. *Request, *Response, *WorkerDescriptor).
func Decode(frame []byte, v Unmarshaler) error {
	if len(frame) < lengthPrefixSize {
		return &errShortFrame{want: lengthPrefixSize, got: len(frame)}
	}

	declared := int(binary.BigEndian.Uint32(frame))
	body := frame[lengthPrefixSize:]
	if len(body) != declared {
		return &errShortFrame{want: declared, got: len(body)}
	}

	dec, err := getDecoder()
	if err != nil {
		return err
	}
	defer putDecoder(dec)

	raw, err := dec.DecodeAll(body, nil)
	if err != nil {
		return err
	}

	_, err = v.UnmarshalMsg(raw)
	return err
}
