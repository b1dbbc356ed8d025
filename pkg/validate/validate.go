// Package validate implements the ArgumentsValidator named in the chat
// engine's command pipeline: a fixed, per-command schema of argument
// types and arity, checked before any hook or dispatch runs.
package validate

import (
	"fmt"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
)

// Kind names the Go type (or type-set) an argument position accepts.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindUint64
	KindStringSlice
	KindAny
)

// Schema is the fixed (argTypes, minArity, maxArity) triple the spec
// names for each command. Optional trailing arguments (e.g.
// roomHistoryGet's limit) are typed in ArgTypes and counted in MaxArity
// but not MinArity. Arguments at positions beyond len(ArgTypes) are not
// type-checked; every command in the fixed vocabulary has
// MaxArity == len(ArgTypes).
type Schema struct {
	ArgTypes []Kind
	MinArity int
	MaxArity int
}

// Validator holds one Schema per domain.CommandName.
type Validator struct {
	schemas map[domain.CommandName]Schema
}

// New constructs a Validator preloaded with the schema for every command
// in domain.AllCommands. Missing a schema for a command in the fixed
// vocabulary is a programmer error, not a runtime condition, so New
// panics rather than returning an error.
func New() *Validator {
	v := &Validator{schemas: defaultSchemas()}
	for _, cmd := range domain.AllCommands {
		if _, ok := v.schemas[cmd]; !ok {
			panic(fmt.Sprintf("validate: no schema registered for command %q", cmd))
		}
	}
	return v
}

// Register installs or overrides the schema for a command, letting
// callers that add commands beyond the fixed vocabulary (e.g. through a
// custom dispatch table) extend validation without forking this package.
func (v *Validator) Register(cmd domain.CommandName, schema Schema) {
	v.schemas[cmd] = schema
}

// Validate checks call.Args against the command's schema, returning a
// *chaterr.ChatError of kind badArgument (wrong type at a position) or
// wrongArgumentsCount (arity out of range) on failure.
func (v *Validator) Validate(cmd domain.CommandName, args []any) error {
	schema, ok := v.schemas[cmd]
	if !ok {
		return chaterr.New(chaterr.KindNoCommand, string(cmd))
	}

	if len(args) < schema.MinArity || len(args) > schema.MaxArity {
		return chaterr.Newf(chaterr.KindWrongArgumentsCount, string(cmd),
			"expected between %d and %d arguments, got %d", schema.MinArity, schema.MaxArity, len(args))
	}

	for i, arg := range args {
		if i >= len(schema.ArgTypes) {
			break
		}
		if !matchesKind(schema.ArgTypes[i], arg) {
			return chaterr.Newf(chaterr.KindBadArgument, string(cmd),
				"argument %d: expected %s", i, kindName(schema.ArgTypes[i]))
		}
	}

	return nil
}

func matchesKind(k Kind, v any) bool {
	if k == KindAny {
		return true
	}
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		switch v.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case KindUint64:
		switch v.(type) {
		case uint64, int, int64, float64:
			return true
		}
		return false
	case KindStringSlice:
		switch vv := v.(type) {
		case []string:
			return true
		case []any:
			for _, e := range vv {
				if _, ok := e.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	default:
		return false
	}
}

func kindName(k Kind) string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint64:
		return "uint64"
	case KindStringSlice:
		return "[]string"
	default:
		return "any"
	}
}

// defaultSchemas encodes the per-command (argTypes, minArity, maxArity)
// triples for the fixed command vocabulary from the command table: list
// names and user/room names are strings, list-mutation payloads are
// string slices, optional trailing arguments (e.g. roomHistoryGet's
// limit) widen maxArity without appearing in minArity.
func defaultSchemas() map[domain.CommandName]Schema {
	return map[domain.CommandName]Schema{
		domain.CmdDirectAddToList: {
			ArgTypes: []Kind{KindString, KindStringSlice}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdDirectGetAccessList: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdDirectGetWhitelistMode: {
			ArgTypes: []Kind{}, MinArity: 0, MaxArity: 0,
		},
		domain.CmdDirectMessage: {
			ArgTypes: []Kind{KindString, KindAny}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdDirectRemoveFromList: {
			ArgTypes: []Kind{KindString, KindStringSlice}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdDirectSetWhitelistMode: {
			ArgTypes: []Kind{KindBool}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdListJoinedSockets: {
			ArgTypes: []Kind{}, MinArity: 0, MaxArity: 0,
		},
		domain.CmdListRooms: {
			ArgTypes: []Kind{}, MinArity: 0, MaxArity: 0,
		},
		domain.CmdRoomAddToList: {
			ArgTypes: []Kind{KindString, KindString, KindStringSlice}, MinArity: 3, MaxArity: 3,
		},
		domain.CmdRoomCreate: {
			ArgTypes: []Kind{KindString, KindBool}, MinArity: 1, MaxArity: 2,
		},
		domain.CmdRoomDelete: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomGetAccessList: {
			ArgTypes: []Kind{KindString, KindString}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdRoomGetOwner: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomGetWhitelistMode: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomHistoryGet: {
			ArgTypes: []Kind{KindString, KindUint64, KindInt}, MinArity: 2, MaxArity: 3,
		},
		domain.CmdRoomHistoryInfo: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomRecentHistory: {
			ArgTypes: []Kind{KindString, KindInt}, MinArity: 1, MaxArity: 2,
		},
		domain.CmdRoomJoin: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomLeave: {
			ArgTypes: []Kind{KindString}, MinArity: 1, MaxArity: 1,
		},
		domain.CmdRoomMessage: {
			ArgTypes: []Kind{KindString, KindAny}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdRoomRemoveFromList: {
			ArgTypes: []Kind{KindString, KindString, KindStringSlice}, MinArity: 3, MaxArity: 3,
		},
		domain.CmdRoomSetWhitelistMode: {
			ArgTypes: []Kind{KindString, KindBool}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdRoomUserSeen: {
			ArgTypes: []Kind{KindString, KindString}, MinArity: 2, MaxArity: 2,
		},
		domain.CmdSystemMessage: {
			ArgTypes: []Kind{KindAny}, MinArity: 1, MaxArity: 1,
		},
	}
}
