package agent

import (
	"strings"
)

// ToolCall represents a capability invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// ThoughtSignature is echoed back to Gemini with the call.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "gemini", "anthropic", "openai"
	APIKey        string `json:"api_key"`
	Model         string `json:"model,omitempty"` // overrides the agent model
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"` // "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ImportancePolicy is the importance recorded for each kind of turn.
type ImportancePolicy struct {
	User  float64 `json:"user"`
	Agent float64 `json:"agent"`
	Error float64 `json:"error"`
}

// DefaultImportancePolicy returns 0.8 for user turns, 0.9 for replies and
// 1.0 for errors.
func DefaultImportancePolicy() ImportancePolicy {
	return ImportancePolicy{User: 0.8, Agent: 0.9, Error: 1.0}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Network errors
	if containsAny(errMsg, "ECONNRESET", "ETIMEDOUT", "connection reset", "i/o timeout") {
		return true
	}

	// Rate limits
	if containsAny(errMsg, "429", "rate limit", "RESOURCE_EXHAUSTED") {
		return true
	}

	// Server errors
	if containsAny(errMsg, "500", "502", "503", "504", "UNAVAILABLE", "overloaded") {
		return true
	}

	return false
}

// IsAuthError reports whether err was caused by the credentials of a
// profile, so another profile may succeed.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"API key expired", "API_KEY_INVALID", "PERMISSION_DENIED",
		"401", "403", "invalid x-api-key", "Incorrect API key",
	)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
