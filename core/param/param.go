// Package param implements the reflection-based parameter binder described
// in spec.md §4.5 (C5), grounded on osom_api/worker/command.py's
// WorkerCommand and the marker types in osom_api/worker/params.py.
//
// A worker command handler is an ordinary Go function. Each parameter is
// classified once, at registration time, into either a runtime source
// (pulled off the inbound Request/Parsed command, identified by its
// static Go type) or a configurable source (a named, optionally-defaulted
// value the command table documents and a caller may override, since Go
// reflection cannot recover a parameter's declared name the way Python's
// inspect module can). The classification and the resulting binding plan
// are computed with reflection exactly once; invoking the plan at dispatch
// time touches no reflection beyond the calls needed to build the argument
// slice.
package param

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/geoffjay/dispatchd/core/command"
	"github.com/geoffjay/dispatchd/core/msg"
)

// Body, Content, Username, Nickname, and MsgUUID are distinct named
// string types a handler parameter can use to request the matching field
// off the inbound request, the Go equivalent of osom_api/worker/params.py's
// BodyParam/ContentParam/UsernameParam/NicknameParam/MsgUUIDParam marker
// subclasses of str.
type (
	Body     string
	Content  string
	Username string
	Nickname string
	MsgUUID  string
)

// Source identifies where a bound argument's value comes from.
type Source int

// The runtime sources, one per field of msg.Request (plus the raw Parsed
// command body), mirror osom_api/worker/params.py's marker classes.
const (
	SourceConfigurable Source = iota
	SourceRequest
	SourceBody
	SourceContent
	SourceFile
	SourceFiles
	SourceUsername
	SourceNickname
	SourceCreatedAt
	SourceMsgUUID
)

// Descriptor describes one parameter of a bound command handler.
type Descriptor struct {
	Name       string
	Source     Source
	Type       reflect.Type
	Doc        string
	Default    string
	HasDefault bool
}

// IsRuntime reports whether the parameter is filled from the inbound
// request rather than from the command's key=value arguments.
func (d Descriptor) IsRuntime() bool {
	return d.Source != SourceConfigurable
}

var (
	requestType   = reflect.TypeOf(msg.Request{})
	fileType      = reflect.TypeOf(msg.File{})
	filesType     = reflect.TypeOf([]msg.File{})
	bodyType      = reflect.TypeOf(Body(""))
	contentType   = reflect.TypeOf(Content(""))
	usernameType  = reflect.TypeOf(Username(""))
	nicknameType  = reflect.TypeOf(Nickname(""))
	msgUUIDType   = reflect.TypeOf(MsgUUID(""))
	createdAtType = reflect.TypeOf(time.Time{})
)

// runtimeSourceByType classifies a parameter by its static Go type,
// mirroring command.py's RUNTIME_REQUEST_TYPES membership test. Anything
// not in this table is a configurable parameter.
func runtimeSourceByType(t reflect.Type) (Source, bool) {
	switch t {
	case requestType:
		return SourceRequest, true
	case fileType:
		return SourceFile, true
	case filesType:
		return SourceFiles, true
	case bodyType:
		return SourceBody, true
	case contentType:
		return SourceContent, true
	case usernameType:
		return SourceUsername, true
	case nicknameType:
		return SourceNickname, true
	case msgUUIDType:
		return SourceMsgUUID, true
	case createdAtType:
		return SourceCreatedAt, true
	default:
		return SourceConfigurable, false
	}
}

// Meta carries the metadata a handler author attaches to a configurable
// parameter: its bound name (since reflection cannot recover it), optional
// documentation, and optional default. The Go analogue of
// Annotated[T, ParamMeta(doc=..., default=...)] in osom_api/worker/metas.py.
type Meta struct {
	Name       string
	Doc        string
	Default    string
	HasDefault bool
}

// Describe builds the parameter descriptor list for a handler function by
// reflecting over its signature. metaByIndex supplies Meta for every
// configurable parameter (runtime parameters need no entry, since their
// source is determined by type alone). A configurable parameter missing
// from metaByIndex is an error: there is no other way to learn its bound
// name.
func Describe(handler interface{}, metaByIndex map[int]Meta) ([]Descriptor, error) {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return nil, &ErrNotAFunction{Got: t}
	}

	descriptors := make([]Descriptor, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		pt := t.In(i)

		if src, ok := runtimeSourceByType(pt); ok {
			descriptors = append(descriptors, Descriptor{Source: src, Type: pt})
			continue
		}

		meta, ok := metaByIndex[i]
		if !ok || meta.Name == "" {
			return nil, &ErrUnnamedConfigurable{Index: i, Type: pt}
		}
		descriptors = append(descriptors, Descriptor{
			Name:       meta.Name,
			Source:     SourceConfigurable,
			Type:       pt,
			Doc:        meta.Doc,
			Default:    meta.Default,
			HasDefault: meta.HasDefault,
		})
	}
	return descriptors, nil
}

// ErrNotAFunction is returned by Describe when handler is not a function.
type ErrNotAFunction struct {
	Got reflect.Type
}

func (e *ErrNotAFunction) Error() string {
	if e.Got == nil {
		return "param: handler is nil, not a function"
	}
	return "param: handler is " + e.Got.String() + ", not a function"
}

// ErrUnnamedConfigurable is returned by Describe when a non-runtime
// parameter has no Meta entry (and therefore no bound name) at its index.
type ErrUnnamedConfigurable struct {
	Index int
	Type  reflect.Type
}

func (e *ErrUnnamedConfigurable) Error() string {
	return "param: configurable parameter at index " + strconv.Itoa(e.Index) + " (" + e.Type.String() + ") has no name"
}

// Bind resolves the argument list for calling a handler described by
// descriptors, given the inbound request/command.
func Bind(descriptors []Descriptor, req msg.Request, cmd command.Parsed) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(descriptors))
	for i, d := range descriptors {
		switch d.Source {
		case SourceRequest:
			args[i] = reflect.ValueOf(req)
		case SourceBody:
			args[i] = reflect.ValueOf(Body(cmd.Body))
		case SourceContent:
			args[i] = reflect.ValueOf(Content(req.Content))
		case SourceFile:
			if len(req.Files) > 0 {
				args[i] = reflect.ValueOf(req.Files[0])
			} else {
				args[i] = reflect.Zero(d.Type)
			}
		case SourceFiles:
			args[i] = reflect.ValueOf(req.Files)
		case SourceUsername:
			args[i] = reflect.ValueOf(Username(req.Username))
		case SourceNickname:
			args[i] = reflect.ValueOf(Nickname(req.Nickname))
		case SourceCreatedAt:
			args[i] = reflect.ValueOf(req.CreatedAt)
		case SourceMsgUUID:
			args[i] = reflect.ValueOf(MsgUUID(req.MsgUUID))
		default:
			value, err := coerce(d, cmd)
			if err != nil {
				return nil, err
			}
			args[i] = value
		}
	}
	return args, nil
}

// coerce resolves a configurable parameter's value. An absent argument
// with no declared default binds the zero value for its type rather than
// erroring -- spec.md §3's "default = null means 'no default; value is
// null when absent'" and §4.5's "if absent, use the descriptor's default"
// both describe a null/zero bind here, matching the original
// MsgCmd.get(key, None)'s None return rather than a raised exception.
func coerce(d Descriptor, cmd command.Parsed) (reflect.Value, error) {
	raw, present := cmd.Kwargs[d.Name]
	if !present && !d.HasDefault {
		return reflect.Zero(d.Type), nil
	}
	if !present {
		raw = d.Default
	}

	switch d.Type.Kind() {
	case reflect.String:
		return reflect.ValueOf(raw).Convert(d.Type), nil
	case reflect.Bool:
		return reflect.ValueOf(command.StringToBool(raw)).Convert(d.Type), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			n = 0
		}
		return reflect.ValueOf(n).Convert(d.Type), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			f = 0
		}
		return reflect.ValueOf(f).Convert(d.Type), nil
	default:
		return reflect.Zero(d.Type), &ErrUnsupportedParamType{Name: d.Name, Type: d.Type}
	}
}

// ErrUnsupportedParamType is returned when a configurable parameter's Go
// type has no coercion rule (only string/bool/int/float are supported, per
// spec.md §4.4).
type ErrUnsupportedParamType struct {
	Name string
	Type reflect.Type
}

func (e *ErrUnsupportedParamType) Error() string {
	return "param: unsupported type for " + e.Name + ": " + e.Type.String()
}
