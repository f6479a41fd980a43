package toolexecutor

import (
	"context"
	"time"
)

// ExecutionContext carries per-call settings for Execute.
type ExecutionContext struct {
	SessionKey string
	// Actor is recorded in the audit log, for example "agent" or "cli".
	Actor   string
	Timeout time.Duration
	// Policy overrides the executor's default policy when set.
	Policy *ToolPolicy
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a context.Context for handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a context.Context.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if execCtx, ok := v.(*ExecutionContext); ok {
			return execCtx
		}
	}
	return nil
}
