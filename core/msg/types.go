// Package msg defines the wire data model shared by every dispatchd role
// (Request, Response, File, WorkerDescriptor) and its compressed,
// length-prefixed binary codec (C3 in spec.md §4.3). The shapes are
// grounded on osom_api/context/msg/request.py, response.py, and
// worker/descs.py; the encoding strategy follows plantd's own
// dependency set (tinylib/msgp for the binary envelope, klauspost/compress
// for the outer compression), both already present in plantd's go.sum.
package msg

import (
	"time"

	"github.com/geoffjay/dispatchd/core/command"
)

// StorageBackend records which blob backend holds a File's bytes once
// uploaded, grounded on osom_api/context/msg/enums/storage.py. Only "s3" is
// wired (store/blob); the enum stays open for parity with the original's
// multi-backend design (spec.md §3.1).
type StorageBackend string

// Recognized StorageBackend values. "r2" and "supabase" are named but
// unimplemented, matching the original's enum; nothing selects them --
// store/upload always records StorageS3.
const (
	StorageS3       StorageBackend = "s3"
	StorageR2       StorageBackend = "r2"
	StorageSupabase StorageBackend = "supabase"
)

// File is a single attachment carried on a Request or Response, grounded on
// osom_api/worker/params.py's FileParam and osom_api/context/msg/file.py.
// Data is present only in transit; after a successful upload (C10) the core
// operates on metadata alone (MimeType is persisted as the file row's
// content_type) and the caller may drop Data.
type File struct {
	UUID      string
	Provider  string
	NativeID  string
	Name      string
	MimeType  string
	Data      []byte
	Width     int
	Height    int
	Storage   StorageBackend
	CreatedAt time.Time
}

// ParamDescriptor documents one configurable parameter of a command, the
// wire form of core/param's reflected ParamDescriptor (grounded on
// osom_api/worker/descs.py's ParamDesc).
type ParamDescriptor struct {
	Name       string
	Doc        string
	Default    string
	HasDefault bool
}

// CommandDescriptor documents one command a worker module exposes,
// grounded on osom_api/worker/descs.py's CmdDesc.
type CommandDescriptor struct {
	Key    string
	Doc    string
	Params []ParamDescriptor
}

// WorkerDescriptor is the self-description a worker module broadcasts on
// registration, grounded on osom_api/msg/worker.py's MsgWorker.
type WorkerDescriptor struct {
	Name     string
	Version  string
	Doc      string
	Path     string
	Commands []CommandDescriptor
}

// Request is a single inbound chat message routed through the fabric,
// grounded on osom_api/context/msg/request.py's MsgRequest.
type Request struct {
	Provider  string
	MessageID string
	ChannelID string
	Content   string
	Username  string
	Nickname  string
	Files     []File
	CreatedAt time.Time
	MsgUUID   string

	// ParsedCmd is populated if and only if Content begins with the
	// command prefix (spec.md §3's "Invariant" on Request.parsedCmd).
	ParsedCmd *command.Parsed
}

// Response is the reply a worker module produces for a Request, grounded
// on osom_api/context/msg/response.py's MsgResponse.
type Response struct {
	MsgUUID   string
	Content   string
	Error     string
	Files     []File
	CreatedAt time.Time
}

// HasError reports whether the response carries an error.
func (r Response) HasError() bool {
	return r.Error != ""
}

// ReplyContent is the error if set, else the content, else "", matching
// MsgResponse.reply_content.
func (r Response) ReplyContent() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Content
}
