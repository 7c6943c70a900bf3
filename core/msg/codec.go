package msg

import (
	"fmt"

	"github.com/geoffjay/dispatchd/core/command"
	"github.com/tinylib/msgp/msgp"
)

// Each type below is encoded as a msgpack map keyed by field name rather
// than a fixed-arity array. A map lets UnmarshalMsg tolerate an unknown
// trailing key (skipped) or a key missing from an older payload (left at
// its zero value), which is the backward-compatibility property spec.md
// §8 asks the codec to hold.

// MarshalMsg appends f's msgpack encoding to b.
func (f File) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 10)
	b = msgp.AppendString(b, "uuid")
	b = msgp.AppendString(b, f.UUID)
	b = msgp.AppendString(b, "provider")
	b = msgp.AppendString(b, f.Provider)
	b = msgp.AppendString(b, "native_id")
	b = msgp.AppendString(b, f.NativeID)
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, f.Name)
	b = msgp.AppendString(b, "mime")
	b = msgp.AppendString(b, f.MimeType)
	b = msgp.AppendString(b, "data")
	b = msgp.AppendBytes(b, f.Data)
	b = msgp.AppendString(b, "width")
	b = msgp.AppendInt(b, f.Width)
	b = msgp.AppendString(b, "height")
	b = msgp.AppendInt(b, f.Height)
	b = msgp.AppendString(b, "storage")
	b = msgp.AppendString(b, string(f.Storage))
	b = msgp.AppendString(b, "created_at")
	b = msgp.AppendTime(b, f.CreatedAt)
	return b, nil
}

// UnmarshalMsg decodes a File from the front of bts, returning the
// remainder.
func (f *File) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "uuid":
			f.UUID, bts, err = msgp.ReadStringBytes(bts)
		case "provider":
			f.Provider, bts, err = msgp.ReadStringBytes(bts)
		case "native_id":
			f.NativeID, bts, err = msgp.ReadStringBytes(bts)
		case "name":
			f.Name, bts, err = msgp.ReadStringBytes(bts)
		case "mime":
			f.MimeType, bts, err = msgp.ReadStringBytes(bts)
		case "data":
			f.Data, bts, err = msgp.ReadBytesBytes(bts, f.Data)
		case "width":
			f.Width, bts, err = msgp.ReadIntBytes(bts)
		case "height":
			f.Height, bts, err = msgp.ReadIntBytes(bts)
		case "storage":
			var s string
			s, bts, err = msgp.ReadStringBytes(bts)
			f.Storage = StorageBackend(s)
		case "created_at":
			f.CreatedAt, bts, err = msgp.ReadTimeBytes(bts)
			f.CreatedAt = f.CreatedAt.UTC()
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

func marshalFiles(b []byte, files []File) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(files)))
	for _, f := range files {
		var err error
		b, err = f.MarshalMsg(b)
		if err != nil {
			// File.MarshalMsg only appends and always returns a nil error.
			panic(err)
		}
	}
	return b
}

func unmarshalFiles(bts []byte) ([]File, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if sz == 0 {
		return nil, bts, nil
	}
	files := make([]File, sz)
	for i := uint32(0); i < sz; i++ {
		bts, err = files[i].UnmarshalMsg(bts)
		if err != nil {
			return nil, bts, err
		}
	}
	return files, bts, nil
}

// MarshalMsg appends p's msgpack encoding to b.
func (p ParamDescriptor) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, p.Name)
	b = msgp.AppendString(b, "doc")
	b = msgp.AppendString(b, p.Doc)
	b = msgp.AppendString(b, "default")
	b = msgp.AppendString(b, p.Default)
	b = msgp.AppendString(b, "has_default")
	b = msgp.AppendBool(b, p.HasDefault)
	return b, nil
}

// UnmarshalMsg decodes a ParamDescriptor from the front of bts.
func (p *ParamDescriptor) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "name":
			p.Name, bts, err = msgp.ReadStringBytes(bts)
		case "doc":
			p.Doc, bts, err = msgp.ReadStringBytes(bts)
		case "default":
			p.Default, bts, err = msgp.ReadStringBytes(bts)
		case "has_default":
			p.HasDefault, bts, err = msgp.ReadBoolBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// MarshalMsg appends c's msgpack encoding to b.
func (c CommandDescriptor) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 3)
	b = msgp.AppendString(b, "key")
	b = msgp.AppendString(b, c.Key)
	b = msgp.AppendString(b, "doc")
	b = msgp.AppendString(b, c.Doc)
	b = msgp.AppendString(b, "params")
	b = msgp.AppendArrayHeader(b, uint32(len(c.Params)))
	for _, p := range c.Params {
		var err error
		b, err = p.MarshalMsg(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// UnmarshalMsg decodes a CommandDescriptor from the front of bts.
func (c *CommandDescriptor) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "key":
			c.Key, bts, err = msgp.ReadStringBytes(bts)
		case "doc":
			c.Doc, bts, err = msgp.ReadStringBytes(bts)
		case "params":
			var n uint32
			n, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return bts, err
			}
			c.Params = make([]ParamDescriptor, n)
			for j := uint32(0); j < n; j++ {
				bts, err = c.Params[j].UnmarshalMsg(bts)
				if err != nil {
					return bts, err
				}
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// MarshalMsg appends w's msgpack encoding to b.
func (w WorkerDescriptor) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, w.Name)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendString(b, w.Version)
	b = msgp.AppendString(b, "doc")
	b = msgp.AppendString(b, w.Doc)
	b = msgp.AppendString(b, "path")
	b = msgp.AppendString(b, w.Path)
	b = msgp.AppendString(b, "commands")
	b = msgp.AppendArrayHeader(b, uint32(len(w.Commands)))
	for _, c := range w.Commands {
		var err error
		b, err = c.MarshalMsg(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// UnmarshalMsg decodes a WorkerDescriptor from the front of bts.
func (w *WorkerDescriptor) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "name":
			w.Name, bts, err = msgp.ReadStringBytes(bts)
		case "version":
			w.Version, bts, err = msgp.ReadStringBytes(bts)
		case "doc":
			w.Doc, bts, err = msgp.ReadStringBytes(bts)
		case "path":
			w.Path, bts, err = msgp.ReadStringBytes(bts)
		case "commands":
			var n uint32
			n, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return bts, err
			}
			w.Commands = make([]CommandDescriptor, n)
			for j := uint32(0); j < n; j++ {
				bts, err = w.Commands[j].UnmarshalMsg(bts)
				if err != nil {
					return bts, err
				}
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// marshalParsedCmd appends the optional parsed-command side channel of a
// Request. A nil *command.Parsed marshals as a one-key map {"present":
// false}; a non-nil one (even with an empty Command) marshals as a four-key
// map with "present": true plus "command", "body" and "kwargs" -- the
// "present" key is what tells the two apart on decode.
func marshalParsedCmd(b []byte, p *command.Parsed) []byte {
	if p == nil {
		b = msgp.AppendMapHeader(b, 1)
		b = msgp.AppendString(b, "present")
		b = msgp.AppendBool(b, false)
		return b
	}
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "present")
	b = msgp.AppendBool(b, true)
	b = msgp.AppendString(b, "command")
	b = msgp.AppendString(b, p.Command)
	b = msgp.AppendString(b, "body")
	b = msgp.AppendString(b, p.Body)
	b = msgp.AppendString(b, "kwargs")
	b = msgp.AppendMapHeader(b, uint32(len(p.Kwargs)))
	for k, v := range p.Kwargs {
		b = msgp.AppendString(b, k)
		b = msgp.AppendString(b, v)
	}
	return b
}

func unmarshalParsedCmd(bts []byte) (*command.Parsed, []byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}

	present := false
	p := &command.Parsed{}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return nil, bts, err
		}
		switch key {
		case "present":
			present, bts, err = msgp.ReadBoolBytes(bts)
		case "command":
			p.Command, bts, err = msgp.ReadStringBytes(bts)
		case "body":
			p.Body, bts, err = msgp.ReadStringBytes(bts)
		case "kwargs":
			var n uint32
			n, bts, err = msgp.ReadMapHeaderBytes(bts)
			if err != nil {
				return nil, bts, err
			}
			p.Kwargs = make(map[string]string, n)
			for j := uint32(0); j < n; j++ {
				var k, v string
				k, bts, err = msgp.ReadStringBytes(bts)
				if err != nil {
					return nil, bts, err
				}
				v, bts, err = msgp.ReadStringBytes(bts)
				if err != nil {
					return nil, bts, err
				}
				p.Kwargs[k] = v
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return nil, bts, err
		}
	}

	if !present {
		return nil, bts, nil
	}
	return p, bts, nil
}

// MarshalMsg appends r's msgpack encoding to b.
func (r Request) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 10)
	b = msgp.AppendString(b, "provider")
	b = msgp.AppendString(b, r.Provider)
	b = msgp.AppendString(b, "message_id")
	b = msgp.AppendString(b, r.MessageID)
	b = msgp.AppendString(b, "channel_id")
	b = msgp.AppendString(b, r.ChannelID)
	b = msgp.AppendString(b, "content")
	b = msgp.AppendString(b, r.Content)
	b = msgp.AppendString(b, "username")
	b = msgp.AppendString(b, r.Username)
	b = msgp.AppendString(b, "nickname")
	b = msgp.AppendString(b, r.Nickname)
	b = msgp.AppendString(b, "files")
	b = marshalFiles(b, r.Files)
	b = msgp.AppendString(b, "created_at")
	b = msgp.AppendTime(b, r.CreatedAt)
	b = msgp.AppendString(b, "msg_uuid")
	b = msgp.AppendString(b, r.MsgUUID)
	b = msgp.AppendString(b, "parsed_cmd")
	b = marshalParsedCmd(b, r.ParsedCmd)
	return b, nil
}

// UnmarshalMsg decodes a Request from the front of bts.
func (r *Request) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "provider":
			r.Provider, bts, err = msgp.ReadStringBytes(bts)
		case "message_id":
			r.MessageID, bts, err = msgp.ReadStringBytes(bts)
		case "channel_id":
			r.ChannelID, bts, err = msgp.ReadStringBytes(bts)
		case "content":
			r.Content, bts, err = msgp.ReadStringBytes(bts)
		case "username":
			r.Username, bts, err = msgp.ReadStringBytes(bts)
		case "nickname":
			r.Nickname, bts, err = msgp.ReadStringBytes(bts)
		case "files":
			r.Files, bts, err = unmarshalFiles(bts)
		case "created_at":
			r.CreatedAt, bts, err = msgp.ReadTimeBytes(bts)
			r.CreatedAt = r.CreatedAt.UTC()
		case "msg_uuid":
			r.MsgUUID, bts, err = msgp.ReadStringBytes(bts)
		case "parsed_cmd":
			r.ParsedCmd, bts, err = unmarshalParsedCmd(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// MarshalMsg appends r's msgpack encoding to b.
func (r Response) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "msg_uuid")
	b = msgp.AppendString(b, r.MsgUUID)
	b = msgp.AppendString(b, "content")
	b = msgp.AppendString(b, r.Content)
	b = msgp.AppendString(b, "error")
	b = msgp.AppendString(b, r.Error)
	b = msgp.AppendString(b, "files")
	b = marshalFiles(b, r.Files)
	b = msgp.AppendString(b, "created_at")
	b = msgp.AppendTime(b, r.CreatedAt)
	return b, nil
}

// UnmarshalMsg decodes a Response from the front of bts.
func (r *Response) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch key {
		case "msg_uuid":
			r.MsgUUID, bts, err = msgp.ReadStringBytes(bts)
		case "content":
			r.Content, bts, err = msgp.ReadStringBytes(bts)
		case "error":
			r.Error, bts, err = msgp.ReadStringBytes(bts)
		case "files":
			r.Files, bts, err = unmarshalFiles(bts)
		case "created_at":
			r.CreatedAt, bts, err = msgp.ReadTimeBytes(bts)
			r.CreatedAt = r.CreatedAt.UTC()
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

// errShortFrame is returned by Decode when a length-prefixed frame's
// declared length does not match the bytes actually available.
type errShortFrame struct {
	want, got int
}

func (e *errShortFrame) Error() string {
	return fmt.Sprintf("msg: short frame: want %d bytes, got %d", e.want, e.got)
}
