// Package command implements the CommandBinder / exec pipeline (C7):
// argument validation, before/after hooks, and dispatch to the bound
// method on pkg/user's Manager, behind one uniform entry point whether
// the call came from a real socket or a server-side local call.
package command

import (
	"context"

	"github.com/concord-chat/concord/internal/logging"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/user"
	"github.com/concord-chat/concord/pkg/validate"
)

// Binder runs the fixed pipeline — validate, beforeHook, dispatch,
// afterHook — for every command in the fixed vocabulary.
type Binder struct {
	validator *validate.Validator
	manager   *user.Manager
	logger    *logging.Logger

	before map[domain.CommandName]domain.BeforeHook
	after  map[domain.CommandName]domain.AfterHook
}

// New constructs a Binder bound to manager, with the default schema set
// from pkg/validate.
func New(manager *user.Manager, logger *logging.Logger) *Binder {
	return &Binder{
		validator: validate.New(),
		manager:   manager,
		logger:    logger,
		before:    make(map[domain.CommandName]domain.BeforeHook),
		after:     make(map[domain.CommandName]domain.AfterHook),
	}
}

// Before registers a beforeHook for cmd, per the <command>Before
// configuration option.
func (b *Binder) Before(cmd domain.CommandName, hook domain.BeforeHook) {
	b.before[cmd] = hook
}

// After registers an afterHook for cmd, per the <command>After
// configuration option.
func (b *Binder) After(cmd domain.CommandName, hook domain.AfterHook) {
	b.after[cmd] = hook
}

// Exec runs the pipeline for call and returns its results or error,
// unserialized — the caller (pkg/chatservice's transport frame handler)
// applies chaterr.Serialize before handing the outcome to a real socket
// callback.
func (b *Binder) Exec(ctx context.Context, call *domain.Call) (domain.Results, error) {
	if err := b.validator.Validate(call.Command, call.Args); err != nil {
		return nil, err
	}

	if requiresSocket(call.Command) && call.SocketID == "" {
		return nil, chaterr.New(chaterr.KindNoSocket, string(call.Command))
	}

	if hook, ok := b.before[call.Command]; ok {
		handled, results, err := hook(ctx, call)
		if handled {
			return results, err
		}
	}

	results, err := b.dispatch(ctx, call)
	if err != nil {
		return nil, err
	}

	if hook, ok := b.after[call.Command]; ok {
		results = hook(ctx, call, results)
	}

	return results, nil
}

// requiresSocket reports whether cmd, per §4.5, must carry a non-empty
// socketId, whether or not IsLocalCall is set.
func requiresSocket(cmd domain.CommandName) bool {
	return cmd == domain.CmdRoomJoin || cmd == domain.CmdRoomLeave
}
