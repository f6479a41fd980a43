package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/pymolagent/internal/observability"
	"github.com/harun/pymolagent/internal/tracing"
	"github.com/harun/pymolagent/pkg/capability"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 10 * 1024

	truncationMarker = "\n... [output truncated]"
	tracerName       = "pymolagent.toolexecutor"
)

var (
	ErrNilHandler       = errors.New("handler cannot be nil")
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrHandlerNotFound  = errors.New("capability not registered")
	ErrPolicyDenied     = errors.New("capability not allowed by policy")
	ErrExecutionTimeout = errors.New("capability execution timeout")
	ErrHandlerPanicked  = errors.New("capability handler panicked")
)

// Handler runs one decoded capability call. A returned error is reported to
// the model as a failed result.
type Handler func(ctx context.Context, args capability.Args) (capability.Result, error)

// Config configures an Executor.
type Config struct {
	// Timeout bounds one handler run. Defaults to 30s.
	Timeout time.Duration

	// MaxOutputBytes caps string outputs. Defaults to 10KB.
	MaxOutputBytes int

	// Policy applies when the execution context carries none. Nil allows all.
	Policy *ToolPolicy

	Logger zerolog.Logger
}

// Executor manages and executes capability handlers
type Executor struct {
	handlers  map[capability.Kind]Handler
	timeout   time.Duration
	maxOutput int
	policy    *ToolPolicy
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// New creates a new Executor
func New(cfg Config) *Executor {
	e := &Executor{
		handlers:  make(map[capability.Kind]Handler),
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutputBytes,
		policy:    cfg.Policy,
		logger:    cfg.Logger,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutputBytes
	}
	return e
}

// Register binds handler to kind. Unknown kinds and second registrations
// are refused.
func (e *Executor) Register(kind capability.Kind, handler Handler) error {
	if _, ok := capability.Parse(string(kind)); !ok {
		return fmt.Errorf("%w: %s", capability.ErrUnknownCapability, kind)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	e.handlers[kind] = handler

	e.logger.Debug().Str("capability", string(kind)).Msg("Capability registered")
	return nil
}

// Unregister removes the handler for kind.
func (e *Executor) Unregister(kind capability.Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, kind)
}

// Registered returns the registered kinds in catalog order.
func (e *Executor) Registered() []capability.Kind {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kinds := make([]capability.Kind, 0, len(e.handlers))
	for _, kind := range capability.All() {
		if _, ok := e.handlers[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Count returns the number of registered handlers.
func (e *Executor) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// Definitions returns the specs of registered capabilities that policy
// allows, for advertising to a model. A nil policy falls back to the
// executor's default.
func (e *Executor) Definitions(policy *ToolPolicy) []capability.Spec {
	if policy == nil {
		policy = e.policy
	}
	var specs []capability.Spec
	for _, kind := range e.Registered() {
		if !policy.IsToolAllowed(string(kind)) {
			continue
		}
		if spec, ok := capability.SpecFor(kind); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

// Execute runs the named capability with raw model arguments.
func (e *Executor) Execute(ctx context.Context, execCtx *ExecutionContext, name string, raw map[string]any) capability.Result {
	startTime := time.Now()

	ctx, span := tracing.StartSpan(ctx, tracerName, "capability.execute",
		attribute.String("capability.name", name),
	)
	result, err := e.execute(ctx, execCtx, name, raw)
	tracing.EndSpan(span, err)

	duration := time.Since(startTime)
	logger := tracing.LoggerFromContext(ctx, e.logger).With().
		Str("capability", name).
		Dur("duration", duration).
		Logger()

	actor := ""
	sessionKey := ""
	if execCtx != nil {
		actor = execCtx.Actor
		sessionKey = execCtx.SessionKey
	}

	if errors.Is(err, ErrPolicyDenied) {
		logger.Warn().Str("actor", actor).Msg("Capability blocked by policy")
		observability.RecordPolicyAudit(ctx, name, actor)
		observability.RecordCapabilityExecution(name, duration, false)
		return result
	}

	if result.Success {
		logger.Debug().Msg("Capability execution completed")
	} else {
		logger.Warn().Str("error", result.Error).Msg("Capability execution failed")
	}

	status := "success"
	if !result.Success {
		status = "error"
	}
	observability.RecordCapabilityExecution(name, duration, result.Success)
	observability.RecordCapabilityAudit(ctx, name, actor, status, map[string]interface{}{
		"session":     sessionKey,
		"duration_ms": duration.Milliseconds(),
	})

	return result
}

// execute returns the result for the model and, for tracing, the error that
// caused a failure.
func (e *Executor) execute(ctx context.Context, execCtx *ExecutionContext, name string, raw map[string]any) (capability.Result, error) {
	policy := e.policy
	if execCtx != nil && execCtx.Policy != nil {
		policy = execCtx.Policy
	}
	if !policy.IsToolAllowed(name) {
		err := fmt.Errorf("%w: %s", ErrPolicyDenied, name)
		return capability.Fail(fmt.Sprintf("capability '%s' is not allowed by policy", name), ""), err
	}

	kind, ok := capability.Parse(name)
	if !ok {
		err := fmt.Errorf("%w: %s", capability.ErrUnknownCapability, name)
		return capability.Fail(fmt.Sprintf("Unknown tool: %s", name), ""), err
	}

	e.mu.RLock()
	handler := e.handlers[kind]
	e.mu.RUnlock()
	if handler == nil {
		err := fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
		return capability.Fail(fmt.Sprintf("Unknown tool: %s", name), ""), err
	}

	args, err := capability.Decode(name, raw)
	if err != nil {
		return capability.Fail(err.Error(), ""), err
	}

	timeout := e.timeout
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}
	timeoutCtx, cancel := context.WithTimeout(ContextWithExecContext(ctx, execCtx), timeout)
	defer cancel()

	type outcome struct {
		result capability.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerPanicked, r)}
			}
		}()
		result, err := handler(timeoutCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return capability.Fail(out.err.Error(), out.result.Command), out.err
		}
		out.result.Output = e.truncateOutput(out.result.Output)
		if !out.result.Success {
			return out.result, errors.New(out.result.Error)
		}
		return out.result, nil

	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return capability.Fail("capability execution cancelled", ""), ctx.Err()
		}
		err := fmt.Errorf("%w after %v", ErrExecutionTimeout, timeout)
		return capability.Fail(err.Error(), ""), err
	}
}

// truncateOutput caps string outputs at the configured size.
func (e *Executor) truncateOutput(output any) any {
	str, ok := output.(string)
	if !ok || len(str) <= e.maxOutput {
		return output
	}

	e.logger.Warn().
		Int("original", len(str)).
		Int("truncated", e.maxOutput).
		Msg("Output truncated")

	return str[:e.maxOutput] + truncationMarker
}
