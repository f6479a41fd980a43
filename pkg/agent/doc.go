// Package agent runs the conversational loop between a user, an LLM provider
// and the registered capabilities.
//
// Invariants:
// - One turn runs at a time; ProcessMessage holds a mutex for the whole turn.
// - The user message is recorded in memory before the provider is called, and
//   the reply (or the error text) is recorded after.
// - Provider failures become the reply text, never a Go error.
// - Capability calls route through toolexecutor only.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{
//		Memory:   mem,
//		Executor: exec,
//		Profiles: []agent.AuthProfile{{ID: "gemini", Provider: "gemini", APIKey: key}},
//		Model:    "gemini-2.5-pro",
//	})
//	reply, _ := a.ProcessMessage(ctx, "load 1ubq and show it as cartoon")
package agent
