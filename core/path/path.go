// Package path defines the broker's canonical key schema.
//
// All keys are relative to the root "/osom/api" (kept from the system this
// fabric was distilled from, since workers and endpoints already agree on it
// as a wire constant). Keys are encoded Latin-1 (one byte per rune) so that a
// subscription channel compares equal, byte for byte, to the literal key.
package path

import (
	"fmt"
	"strings"
)

// Root is the namespace all broker keys live under.
const Root = "/osom/api"

// Separator joins path segments.
const Separator = "/"

// Encoding is the single-byte transparent encoding used for channel/key
// identity. golang.org/x/text/encoding/charmap.ISO8859_1 would also work, but
// every key in this schema is ASCII, so a direct byte cast is exact and
// avoids an extra dependency for a no-op transform.
const Encoding = "latin1"

// Well-known keys.
var (
	Broadcast             = Join(Root, "broadcast")
	RegisterWorker        = Join(Root, "register", "worker")
	RegisterWorkerRequest = Join(Root, "register", "worker", "request")
	UnregisterWorker      = Join(Root, "unregister", "worker")
)

// Join concatenates path segments with Separator, collapsing a duplicated
// separator at the seam (mirrors the reduce-based join_path helper the
// original system used for the same purpose).
func Join(segments ...string) string {
	if len(segments) == 0 {
		return Root
	}

	out := segments[0]
	for _, seg := range segments[1:] {
		out = joinTwo(out, seg)
	}
	return out
}

func joinTwo(a, b string) string {
	aEndsSep := strings.HasSuffix(a, Separator)
	bStartsSep := strings.HasPrefix(b, Separator)

	switch {
	case aEndsSep && bStartsSep:
		return a + b[len(Separator):]
	case aEndsSep || bStartsSep:
		return a + b
	default:
		return a + Separator + b
	}
}

// RequestPath returns the canonical request queue key for a worker name.
func RequestPath(worker string) string {
	return Join(Root, "request", worker)
}

// ResponsePath returns the canonical response queue key for a request's
// correlation id.
func ResponsePath(msgUUID string) string {
	return Join(Root, "response", msgUUID)
}

// Encode returns the single-byte transparent encoding of a key, suitable for
// comparison against bytes received on a subscription channel.
func Encode(key string) []byte {
	return []byte(key)
}

// Decode is the inverse of Encode.
func Decode(b []byte) string {
	return string(b)
}

// String renders a key with an explicit encoding tag, useful in log fields.
func String(key string) string {
	return fmt.Sprintf("%s(%s)", key, Encoding)
}
