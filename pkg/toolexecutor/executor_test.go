package toolexecutor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/pymolagent/pkg/capability"
)

func newTestExecutor(cfg Config) *Executor {
	cfg.Logger = zerolog.Nop()
	return New(cfg)
}

func echoHandler(ctx context.Context, args capability.Args) (capability.Result, error) {
	a := args.(capability.EchoMessageArgs)
	return capability.OK(map[string]any{"message": "Echo: " + a.Message}, ""), nil
}

func TestExecutor_Defaults(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, DefaultTimeout, e.timeout)
	assert.Equal(t, DefaultMaxOutputBytes, e.maxOutput)
	assert.Equal(t, 0, e.Count())
}

func TestExecutor_Register(t *testing.T) {
	e := newTestExecutor(Config{})

	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))
	assert.Equal(t, 1, e.Count())
	assert.Equal(t, []capability.Kind{capability.EchoMessage}, e.Registered())
}

func TestExecutor_Register_Refusals(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))

	err := e.Register(capability.EchoMessage, echoHandler)
	assert.ErrorIs(t, err, ErrDuplicateHandler)

	err = e.Register(capability.Kind("launch_rockets"), echoHandler)
	assert.ErrorIs(t, err, capability.ErrUnknownCapability)

	err = e.Register(capability.MemorySearch, nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	assert.Equal(t, 1, e.Count())
}

func TestExecutor_Unregister(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))

	e.Unregister(capability.EchoMessage)
	assert.Equal(t, 0, e.Count())
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))
}

func TestExecutor_Registered_CatalogOrder(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.ListVisibleWindows, echoHandler))
	require.NoError(t, e.Register(capability.MemorySearch, echoHandler))
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))

	assert.Equal(t, []capability.Kind{
		capability.EchoMessage,
		capability.MemorySearch,
		capability.ListVisibleWindows,
	}, e.Registered())
}

func TestExecutor_Definitions(t *testing.T) {
	e := newTestExecutor(Config{Policy: &ToolPolicy{Allow: []string{"*"}, Deny: []string{"group:desktop"}}})
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))
	require.NoError(t, e.Register(capability.ClickAtCoordinates, echoHandler))
	require.NoError(t, e.Register(capability.LoadMolecule, echoHandler))

	specs := e.Definitions(nil)
	require.Len(t, specs, 2)
	assert.Equal(t, capability.EchoMessage, specs[0].Kind)
	assert.Equal(t, capability.LoadMolecule, specs[1].Kind)
	assert.Equal(t, "object", specs[1].Schema["type"])

	only := e.Definitions(&ToolPolicy{Allow: []string{"echo_message"}})
	require.Len(t, only, 1)
	assert.Equal(t, capability.EchoMessage, only[0].Kind)
}

func TestExecutor_Execute_Success(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))

	result := e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "hello"})

	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"message": "Echo: hello"}, result.Output)
	assert.Empty(t, result.Error)
}

func TestExecutor_Execute_DecodesDefaults(t *testing.T) {
	e := newTestExecutor(Config{})
	var got capability.MemorySearchArgs
	require.NoError(t, e.Register(capability.MemorySearch, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		got = args.(capability.MemorySearchArgs)
		return capability.OK([]string{}, ""), nil
	}))

	result := e.Execute(context.Background(), nil, "memory_search", map[string]any{"query": "ubiquitin"})

	require.True(t, result.Success)
	assert.Equal(t, "ubiquitin", got.Query)
	assert.Equal(t, 5, got.Limit)
}

func TestExecutor_Execute_UnknownCapability(t *testing.T) {
	e := newTestExecutor(Config{})

	result := e.Execute(context.Background(), nil, "launch_rockets", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "Unknown tool: launch_rockets", result.Error)

	result = e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "x"})
	assert.False(t, result.Success)
	assert.Equal(t, "Unknown tool: echo_message", result.Error)
}

func TestExecutor_Execute_InvalidArguments(t *testing.T) {
	e := newTestExecutor(Config{})
	called := false
	require.NoError(t, e.Register(capability.LoadMolecule, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		called = true
		return capability.OK("", ""), nil
	}))

	result := e.Execute(context.Background(), nil, "load_molecule", map[string]any{"path": "1ubq.pdb"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments for load_molecule")
	assert.False(t, called)
}

func TestExecutor_Execute_PolicyDenied(t *testing.T) {
	e := newTestExecutor(Config{Policy: &ToolPolicy{Allow: []string{"*"}, Deny: []string{"echo_message"}}})
	called := false
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		called = true
		return capability.OK("", ""), nil
	}))

	result := e.Execute(context.Background(), &ExecutionContext{Actor: "agent"}, "echo_message", map[string]any{"message": "x"})

	assert.False(t, result.Success)
	assert.Equal(t, "capability 'echo_message' is not allowed by policy", result.Error)
	assert.False(t, called)
}

func TestExecutor_Execute_ContextPolicyOverridesDefault(t *testing.T) {
	e := newTestExecutor(Config{Policy: &ToolPolicy{Allow: []string{}}})
	require.NoError(t, e.Register(capability.EchoMessage, echoHandler))

	denied := e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "x"})
	assert.False(t, denied.Success)

	allowed := e.Execute(context.Background(), &ExecutionContext{
		Policy: &ToolPolicy{Allow: []string{"group:general"}},
	}, "echo_message", map[string]any{"message": "x"})
	assert.True(t, allowed.Success)
}

func TestExecutor_Execute_HandlerError(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.ZoomToObject, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.Result{Command: "zoom 1ubq"}, errors.New("pymol not installed")
	}))

	result := e.Execute(context.Background(), nil, "zoom_to_object", map[string]any{"object_name": "1ubq"})

	assert.False(t, result.Success)
	assert.Equal(t, "pymol not installed", result.Error)
	assert.Equal(t, "zoom 1ubq", result.Command)
}

func TestExecutor_Execute_FailedResultPassesThrough(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.ZoomToObject, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.Fail("Selector error", "zoom ghost"), nil
	}))

	result := e.Execute(context.Background(), nil, "zoom_to_object", map[string]any{"object_name": "ghost"})

	assert.Equal(t, capability.Fail("Selector error", "zoom ghost"), result)
}

func TestExecutor_Execute_Panic(t *testing.T) {
	e := newTestExecutor(Config{})
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		panic("boom")
	}))

	result := e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "x"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	e := newTestExecutor(Config{Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		<-release
		return capability.OK("late", ""), nil
	}))

	start := time.Now()
	result := e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "x"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "capability execution timeout after 20ms")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutor_Execute_ContextTimeoutOverride(t *testing.T) {
	e := newTestExecutor(Config{Timeout: time.Minute})
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		<-ctx.Done()
		return capability.Result{}, ctx.Err()
	}))

	result := e.Execute(context.Background(), &ExecutionContext{Timeout: 10 * time.Millisecond}, "echo_message", map[string]any{"message": "x"})

	assert.False(t, result.Success)
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	e := newTestExecutor(Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		close(started)
		<-release
		return capability.OK("late", ""), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result := e.Execute(ctx, nil, "echo_message", map[string]any{"message": "x"})
	assert.False(t, result.Success)
	assert.Equal(t, "capability execution cancelled", result.Error)
}

func TestExecutor_Execute_TruncatesStringOutput(t *testing.T) {
	e := newTestExecutor(Config{MaxOutputBytes: 16})
	require.NoError(t, e.Register(capability.ExecutePyMOLCommand, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.OK(strings.Repeat("a", 100), "print"), nil
	}))

	result := e.Execute(context.Background(), nil, "execute_pymol_command", map[string]any{"command": "print"})

	require.True(t, result.Success)
	assert.Equal(t, strings.Repeat("a", 16)+"\n... [output truncated]", result.Output)
}

func TestExecutor_Execute_DefaultTruncationLimit(t *testing.T) {
	e := newTestExecutor(Config{})
	exact := strings.Repeat("b", DefaultMaxOutputBytes)
	require.NoError(t, e.Register(capability.ExecutePyMOLCommand, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		return capability.OK(exact, ""), nil
	}))

	result := e.Execute(context.Background(), nil, "execute_pymol_command", map[string]any{"command": "print"})
	assert.Equal(t, exact, result.Output)
}

func TestExecutor_Execute_PassesExecutionContext(t *testing.T) {
	e := newTestExecutor(Config{})
	var seen *ExecutionContext
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		seen = ExecContextFromContext(ctx)
		return capability.OK("", ""), nil
	}))

	execCtx := &ExecutionContext{SessionKey: "s1", Actor: "cli"}
	e.Execute(context.Background(), execCtx, "echo_message", map[string]any{"message": "x"})

	assert.Same(t, execCtx, seen)
}

func TestExecutor_Execute_Concurrent(t *testing.T) {
	e := newTestExecutor(Config{})
	var calls int64
	require.NoError(t, e.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
		atomic.AddInt64(&calls, 1)
		return capability.OK("", ""), nil
	}))

	done := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		go func() {
			done <- e.Execute(context.Background(), nil, "echo_message", map[string]any{"message": "x"}).Success
		}()
	}
	for i := 0; i < 16; i++ {
		assert.True(t, <-done)
	}
	assert.Equal(t, int64(16), atomic.LoadInt64(&calls))
}

func TestContextWithExecContext(t *testing.T) {
	assert.Nil(t, ExecContextFromContext(context.Background()))

	base := context.Background()
	assert.Equal(t, base, ContextWithExecContext(base, nil))

	execCtx := &ExecutionContext{SessionKey: "abc"}
	assert.Same(t, execCtx, ExecContextFromContext(ContextWithExecContext(base, execCtx)))
}
