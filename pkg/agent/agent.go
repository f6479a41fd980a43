package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/pymolagent/internal/observability"
	"github.com/harun/pymolagent/internal/tracing"
	"github.com/harun/pymolagent/pkg/capability"
	"github.com/harun/pymolagent/pkg/memory"
	"github.com/harun/pymolagent/pkg/toolexecutor"
)

const (
	DefaultModel        = "gemini-2.5-pro"
	DefaultTemperature  = 0.1
	DefaultMaxTokens    = 8192
	DefaultMaxToolTurns = 10
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultContextLimit = 5

	// profileCooldown is multiplied by the consecutive failure count.
	profileCooldown = 60 * time.Second

	tracerName = "pymolagent.agent"
)

// ErrNoProvider is returned by a turn when no profile is configured.
var ErrNoProvider = errors.New("no AI provider configured; set GEMINI_API_KEY")

// Config configures an Agent.
type Config struct {
	Memory   *memory.Manager
	Executor *toolexecutor.Executor

	// Profiles are tried in ascending Priority order.
	Profiles []AuthProfile
	Factory  ProviderCreator

	Model        string
	Temperature  *float64
	MaxTokens    int
	MaxToolTurns int
	MaxRetries   int
	// RetryDelay is the first backoff step; it doubles on each retry.
	RetryDelay   time.Duration
	ContextLimit int

	Policy *ImportancePolicy
	// ToolPolicy restricts which capabilities are advertised and executed.
	ToolPolicy   *toolexecutor.ToolPolicy
	SystemPrompt string

	Logger zerolog.Logger
}

// Agent answers user messages, calling capabilities on the model's behalf.
type Agent struct {
	memory   *memory.Manager
	executor *toolexecutor.Executor
	factory  ProviderCreator
	logger   zerolog.Logger

	model        string
	temperature  float64
	maxTokens    int
	maxToolTurns int
	maxRetries   int
	retryDelay   time.Duration
	contextLimit int
	policy       ImportancePolicy
	toolPolicy   *toolexecutor.ToolPolicy
	systemPrompt string

	// turnMu serializes turns.
	turnMu sync.Mutex

	authMu       sync.RWMutex
	authProfiles []AuthProfile
	providers    map[string]LLMProvider

	now func() time.Time
}

// New creates an Agent. Memory and Executor are required.
func New(cfg Config) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Memory == nil {
		return nil, fmt.Errorf("memory manager is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}

	a := &Agent{
		memory:       cfg.Memory,
		executor:     cfg.Executor,
		factory:      cfg.Factory,
		logger:       cfg.Logger,
		model:        cfg.Model,
		temperature:  DefaultTemperature,
		maxTokens:    cfg.MaxTokens,
		maxToolTurns: cfg.MaxToolTurns,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		contextLimit: cfg.ContextLimit,
		policy:       DefaultImportancePolicy(),
		toolPolicy:   cfg.ToolPolicy,
		systemPrompt: cfg.SystemPrompt,
		authProfiles: append([]AuthProfile(nil), cfg.Profiles...),
		providers:    make(map[string]LLMProvider),
		now:          time.Now,
	}
	if a.factory == nil {
		a.factory = &ProviderFactory{}
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if cfg.Temperature != nil {
		a.temperature = *cfg.Temperature
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	if a.maxToolTurns <= 0 {
		a.maxToolTurns = DefaultMaxToolTurns
	}
	if a.maxRetries <= 0 {
		a.maxRetries = DefaultMaxRetries
	}
	if a.retryDelay <= 0 {
		a.retryDelay = DefaultRetryDelay
	}
	if a.contextLimit <= 0 {
		a.contextLimit = DefaultContextLimit
	}
	if cfg.Policy != nil {
		a.policy = *cfg.Policy
	}
	if a.systemPrompt == "" {
		a.systemPrompt = DefaultSystemPrompt
	}
	sortProfilesByPriority(a.authProfiles)

	return a, nil
}

// Model returns the default model name.
func (a *Agent) Model() string {
	return a.model
}

// Temperature returns the sampling temperature sent with each call.
func (a *Agent) Temperature() float64 {
	return a.temperature
}

// ProcessMessage runs one conversational turn. Provider failures are
// returned as reply text; the error is non-nil only when ctx ends first.
func (a *Agent) ProcessMessage(ctx context.Context, message string) (string, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	ctx = tracing.NewTurnContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.process_message",
		attribute.Int("message.length", len(message)),
	)
	logger := tracing.LoggerFromContext(ctx, a.logger)
	start := time.Now()

	a.memory.AddShortTerm("User: "+message, memory.WithImportance(a.policy.User))
	prompt := BuildPrompt(a.memory.GetContext(a.contextLimit), message)

	reply, provider, err := a.run(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			tracing.EndSpan(span, ctxErr)
			return "", ctxErr
		}
		observability.RecordAgentTurn(provider, time.Since(start), false)
		logger.Error().Err(err).Str("provider", provider).Msg("Turn failed")

		text := FormatError(err)
		a.memory.AddShortTerm(text, memory.WithImportance(a.policy.Error))
		tracing.EndSpan(span, err)
		return text, nil
	}

	a.memory.AddShortTerm("Agent: "+reply, memory.WithImportance(a.policy.Agent))
	observability.RecordAgentTurn(provider, time.Since(start), true)
	logger.Info().
		Str("provider", provider).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")
	tracing.EndSpan(span, nil)
	return reply, nil
}

// run drives the tool loop and returns the final text and the provider that
// produced it.
func (a *Agent) run(ctx context.Context, prompt string) (string, string, error) {
	messages := []AgentMessage{{Role: "user", Content: prompt}}
	tools := a.executor.Definitions(a.toolPolicy)
	execCtx := &toolexecutor.ExecutionContext{
		SessionKey: tracing.GetSessionID(ctx),
		Actor:      "agent",
		Policy:     a.toolPolicy,
	}

	provider := "none"
	for turn := 0; turn < a.maxToolTurns; turn++ {
		response, name, err := a.callWithFailover(ctx, messages, tools)
		if name != "" {
			provider = name
		}
		if err != nil {
			return "", provider, err
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, provider, nil
		}

		messages = append(messages, AgentMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		for _, call := range response.ToolCalls {
			result := a.executor.Execute(ctx, execCtx, call.Name, call.Parameters)
			messages = append(messages, AgentMessage{
				Role:       "tool",
				Content:    encodeResult(result),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	// Out of tool rounds: ask for a plain answer about what was done.
	response, name, err := a.callWithFailover(ctx, messages, nil)
	if name != "" {
		provider = name
	}
	if err != nil {
		return "", provider, err
	}
	return response.Content, provider, nil
}

// callWithFailover makes one LLM call, moving down the profile list when a
// profile fails with a transient or credential error.
func (a *Agent) callWithFailover(ctx context.Context, messages []AgentMessage, tools []capability.Spec) (*LLMResponse, string, error) {
	a.authMu.RLock()
	profiles := make([]AuthProfile, len(a.authProfiles))
	copy(profiles, a.authProfiles)
	a.authMu.RUnlock()

	if len(profiles) == 0 {
		return nil, "", ErrNoProvider
	}

	logger := tracing.LoggerFromContext(ctx, a.logger)
	var lastErr error
	lastProvider := ""
	canFailOver := len(profiles) > 1

	for _, profile := range a.usableProfiles(profiles) {
		provider, err := a.providerFor(profile)
		if err != nil {
			lastErr = err
			logger.Warn().
				Str("profileId", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			continue
		}
		lastProvider = provider.Provider()

		model := a.model
		if profile.Model != "" {
			model = profile.Model
		}

		response, err := a.callWithRetry(ctx, provider, LLMRequest{
			Model:        model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  a.temperature,
			MaxTokens:    a.maxTokens,
			SystemPrompt: a.systemPrompt,
		})
		if err == nil {
			a.updateProfileSuccess(profile.ID)
			return response, lastProvider, nil
		}
		if ctx.Err() != nil {
			return nil, lastProvider, ctx.Err()
		}

		lastErr = err
		logger.Warn().
			Str("profileId", profile.ID).
			Err(err).
			Msg("Auth profile failed")

		if !IsRetryableError(err) && !IsAuthError(err) {
			return nil, lastProvider, err
		}
		if canFailOver {
			a.updateProfileFailure(profile.ID)
		}
	}

	if !canFailOver {
		return nil, lastProvider, lastErr
	}
	logger.Error().Err(lastErr).Msg("All auth profiles failed")
	return nil, lastProvider, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// usableProfiles drops profiles in cooldown. When every profile is cooling
// down, the one whose cooldown ends first is still tried.
func (a *Agent) usableProfiles(profiles []AuthProfile) []AuthProfile {
	nowMs := a.now().UnixMilli()
	usable := make([]AuthProfile, 0, len(profiles))
	var soonest *AuthProfile
	for i, profile := range profiles {
		if profile.CooldownUntil == nil || nowMs >= *profile.CooldownUntil {
			usable = append(usable, profile)
			continue
		}
		observability.SetProviderCooldown(profile.Provider, true)
		a.logger.Debug().
			Str("profileId", profile.ID).
			Msg("Skipping profile in cooldown")
		if soonest == nil || *profile.CooldownUntil < *soonest.CooldownUntil {
			soonest = &profiles[i]
		}
	}
	if len(usable) == 0 && soonest != nil {
		usable = append(usable, *soonest)
	}
	return usable
}

// callWithRetry calls the provider with exponential backoff: 1s, 2s, 4s by
// default.
func (a *Agent) callWithRetry(ctx context.Context, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.call_llm",
		attribute.String("provider", provider.Provider()),
		attribute.String("model", request.Model),
		attribute.Int("tools", len(request.Tools)),
	)

	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			if response.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input_tokens", response.Usage.InputTokens),
					attribute.Int("usage.output_tokens", response.Usage.OutputTokens),
				)
			}
			tracing.EndSpan(span, nil)
			return response, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			tracing.EndSpan(span, err)
			return nil, err
		}
		if attempt == a.maxRetries-1 {
			break
		}

		delay := a.retryDelay * time.Duration(1<<attempt)
		a.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			tracing.EndSpan(span, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	err := fmt.Errorf("max retries (%d) exceeded: %w", a.maxRetries, lastErr)
	tracing.EndSpan(span, err)
	return nil, err
}

func (a *Agent) providerFor(profile AuthProfile) (LLMProvider, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	if p, ok := a.providers[profile.ID]; ok {
		return p, nil
	}
	p, err := a.factory.NewProvider(profile)
	if err != nil {
		return nil, err
	}
	a.providers[profile.ID] = p
	return p, nil
}

// updateProfileSuccess resets failure count for a profile
func (a *Agent) updateProfileSuccess(profileID string) {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	for i := range a.authProfiles {
		if a.authProfiles[i].ID == profileID {
			a.authProfiles[i].FailureCount = 0
			a.authProfiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(a.authProfiles[i].Provider, false)
			break
		}
	}
}

// updateProfileFailure puts a profile into cooldown for one minute per
// consecutive failure.
func (a *Agent) updateProfileFailure(profileID string) {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	for i := range a.authProfiles {
		if a.authProfiles[i].ID == profileID {
			a.authProfiles[i].FailureCount++
			until := a.now().Add(profileCooldown * time.Duration(a.authProfiles[i].FailureCount)).UnixMilli()
			a.authProfiles[i].CooldownUntil = &until
			observability.SetProviderCooldown(a.authProfiles[i].Provider, true)
			break
		}
	}
}

// Profiles returns a snapshot of the auth profiles in priority order.
func (a *Agent) Profiles() []AuthProfile {
	a.authMu.RLock()
	defer a.authMu.RUnlock()
	return append([]AuthProfile(nil), a.authProfiles...)
}

// MemorySummary reports tier sizes and the number of registered capabilities.
func (a *Agent) MemorySummary() string {
	stats := a.memory.Stats()
	return fmt.Sprintf("Short-term memory: %d items\nLong-term memory: %d items\nRegistered tools: %d",
		stats.ShortTerm, stats.LongTerm, a.executor.Count())
}

// Status is the text shown by the REPL "status" command.
func (a *Agent) Status() string {
	return fmt.Sprintf("PyMOL Learning Agent Status:\n%s\nActive Model: %s\nTemperature: %g\nSystem Ready: ✓",
		a.MemorySummary(), a.model, a.temperature)
}

// encodeResult renders a capability result as the JSON tool message body.
func encodeResult(result capability.Result) string {
	data, err := json.Marshal(result.Map())
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "unencodable result: "+err.Error())
	}
	return string(data)
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
