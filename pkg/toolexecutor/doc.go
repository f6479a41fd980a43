// Package toolexecutor registers capability handlers and executes model
// function calls against them.
//
// Invariants:
// - Each capability kind has at most one handler.
// - Arguments are schema-validated and decoded before a handler runs.
// - Policy is checked before anything else; deny overrides allow.
// - Handler failures, panics and timeouts come back as failed results, never
//   as Go errors, so the model can read them.
//
// Usage:
//
//	exec := toolexecutor.New(toolexecutor.Config{})
//	_ = exec.Register(capability.EchoMessage, func(ctx context.Context, args capability.Args) (capability.Result, error) {
//		a := args.(capability.EchoMessageArgs)
//		return capability.OK(map[string]any{"message": "Echo: " + a.Message}, ""), nil
//	})
//	res := exec.Execute(ctx, nil, "echo_message", map[string]any{"message": "hi"})
package toolexecutor
