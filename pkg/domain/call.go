package domain

import "context"

// Call describes a single invocation of the command pipeline: who issued
// it, over which socket (empty for server-side/local calls), and with
// what arguments. BeforeHook may rewrite Args in place (same arity and
// types); AfterHook may rewrite the returned Results.
type Call struct {
	Command            CommandName
	UserName           string
	SocketID           string
	Args               []any
	BypassPermissions  bool
	IsLocalCall        bool
}

// Results is the tuple of values a command hands back to its caller on
// success, mirroring the "(error, data...)" shape of the client protocol.
type Results []any

// BeforeHook runs before a command dispatches. Returning handled=true
// short-circuits dispatch with (results, err) as the outcome; returning
// handled=false lets the (possibly rewritten) call proceed to dispatch.
type BeforeHook func(ctx context.Context, call *Call) (handled bool, results Results, err error)

// AfterHook runs after a command dispatches successfully and may rewrite
// the results returned to the caller.
type AfterHook func(ctx context.Context, call *Call, results Results) Results
