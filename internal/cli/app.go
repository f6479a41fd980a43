package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/harun/pymolagent/internal/config"
	"github.com/harun/pymolagent/internal/logger"
	"github.com/harun/pymolagent/internal/observability"
	"github.com/harun/pymolagent/internal/tracing"
	"github.com/harun/pymolagent/pkg/agent"
	"github.com/harun/pymolagent/pkg/desktop"
	"github.com/harun/pymolagent/pkg/memory"
	"github.com/harun/pymolagent/pkg/pymol"
	"github.com/harun/pymolagent/pkg/sandbox"
	"github.com/harun/pymolagent/pkg/toolexecutor"
)

const serviceName = "pymol-agent"

// app is the runtime assembled for one command invocation.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	logger zerolog.Logger

	memory   *memory.Manager
	watcher  *memory.FileWatcher
	sandbox  sandbox.Sandbox
	executor *toolexecutor.Executor
	agent    *agent.Agent
}

type appOptions struct {
	// withAgent wires the sandbox, capability backends and the agent.
	withAgent bool
	// watchMemory starts the memory file watcher when the config enables it.
	watchMemory bool
}

// loadConfig reads .env, then the config file, then applies --log-level.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, logger: log.GetZerolog()}
	for _, verr := range config.NewValidator().ValidateConfig(cfg) {
		a.logger.Warn().Err(verr).Msg("Configuration warning")
	}

	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		a.logger.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Audit log disabled")
	}
	if err := tracing.InitOpenTelemetry(tracing.Options{
		ServiceName:    serviceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Tracing disabled")
	}

	if err := a.openMemory(opts.watchMemory); err != nil {
		a.close()
		return nil, err
	}

	if opts.withAgent {
		if err := a.wireAgent(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openMemory(watch bool) error {
	store, err := memory.OpenStore(a.cfg.Memory.Backend, a.cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}

	a.memory = memory.NewManager(memory.Config{
		Store:              store,
		MaxShortTerm:       a.cfg.Memory.MaxShortTerm,
		PromotionThreshold: memory.Threshold(a.cfg.Memory.PromotionThreshold),
		Logger:             a.log.Component("memory"),
	})

	fileStore, isFile := store.(*memory.JSONFileStore)
	if watch && a.cfg.Memory.Watch && isFile {
		memLogger := a.log.Component("memory")
		w, err := memory.WatchStore(memLogger, fileStore)
		if err != nil {
			memLogger.Warn().Err(err).Msg("Memory file watcher disabled")
		} else {
			a.watcher = w
		}
	}
	return nil
}

func (a *app) wireAgent(ctx context.Context) error {
	sb, err := sandbox.New(sandboxConfig(a.cfg))
	if err != nil {
		return fmt.Errorf("failed to create sandbox: %w", err)
	}
	if err := sb.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sandbox: %w", err)
	}
	a.sandbox = sb

	policy := toolPolicy(a.cfg)
	for _, warning := range toolexecutor.ValidatePolicy(policy) {
		a.logger.Warn().Str("warning", warning).Msg("Tool policy")
	}

	a.executor = toolexecutor.New(toolexecutor.Config{
		Policy: policy,
		Logger: a.log.Component("toolexecutor"),
	})

	desktopCfg := desktop.Config{
		Display:       a.cfg.Desktop.Display,
		TypeInterval:  time.Duration(a.cfg.Desktop.TypeIntervalMs) * time.Millisecond,
		ScreenshotDir: a.cfg.Desktop.ScreenshotDir,
		Logger:        a.log.Component("desktop"),
	}
	if err := os.MkdirAll(a.cfg.PyMOL.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create PyMOL work directory: %w", err)
	}

	deps := agent.Deps{
		Memory: a.memory,
		PyMOL: pymol.NewExecutor(sb, pymol.Config{
			Path:    a.cfg.PyMOL.Path,
			Timeout: time.Duration(a.cfg.PyMOL.Timeout) * time.Second,
			WorkDir: a.cfg.PyMOL.WorkDir,
			Replay:  true,
			Logger:  a.log.Component("pymol"),
		}),
		Desktop:   desktop.NewController(sb, desktopCfg),
		Inspector: desktop.NewInspector(sb, desktopCfg),
	}
	if err := agent.RegisterDefaultCapabilities(a.executor, deps); err != nil {
		return err
	}

	temperature := a.cfg.AI.Temperature
	ag, err := agent.New(agent.Config{
		Memory:       a.memory,
		Executor:     a.executor,
		Profiles:     authProfiles(a.cfg.AI.Profiles),
		Model:        a.cfg.AI.Model,
		Temperature:  &temperature,
		MaxTokens:    a.cfg.AI.MaxTokens,
		MaxToolTurns: a.cfg.AI.MaxToolTurns,
		ContextLimit: a.cfg.Memory.ContextLimit,
		Policy: &agent.ImportancePolicy{
			User:  a.cfg.Memory.UserTurnImportance,
			Agent: a.cfg.Memory.AgentTurnImportance,
			Error: a.cfg.Memory.ErrorImportance,
		},
		ToolPolicy:   policy,
		SystemPrompt: a.cfg.AI.SystemPrompt,
		Logger:       a.log.Component("agent"),
	})
	if err != nil {
		return err
	}
	if len(a.cfg.AI.Profiles) == 0 {
		a.logger.Warn().Msg("No AI provider configured; set GEMINI_API_KEY or run 'pymol-agent configure'")
	}
	a.agent = ag
	return nil
}

// toolPolicy merges the configured policy with what the sandbox runtime can
// serve. X11 tools cannot reach the display from a container.
func toolPolicy(cfg *config.Config) *toolexecutor.ToolPolicy {
	configured := &toolexecutor.ToolPolicy{Allow: cfg.Tools.Allow, Deny: cfg.Tools.Deny}
	if sandbox.Runtime(cfg.Sandbox.Runtime) != sandbox.RuntimeDocker {
		return configured
	}
	return toolexecutor.MergePolicies(configured, &toolexecutor.ToolPolicy{
		Allow: []string{"*"},
		Deny:  []string{"group:desktop", "group:inspector"},
	})
}

func sandboxConfig(cfg *config.Config) sandbox.Config {
	sc := sandbox.DefaultConfig()
	sc.Runtime = sandbox.Runtime(cfg.Sandbox.Runtime)
	sc.ResourceLimits.MaxMemoryMB = cfg.Sandbox.MemoryMB
	if cfg.Sandbox.CPUs > 0 {
		sc.ResourceLimits.MaxCPU = min(100, int(cfg.Sandbox.CPUs*100))
	}
	if cfg.Sandbox.Image != "" {
		sc.Docker.Image = cfg.Sandbox.Image
	}
	sc.Docker.Network = cfg.Sandbox.Network
	sc.NetworkAccess.Enabled = cfg.Sandbox.Network != "" && cfg.Sandbox.Network != "none"
	return sc
}

func authProfiles(profiles []config.AIProfile) []agent.AuthProfile {
	out := make([]agent.AuthProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}
	return out
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.sandbox != nil {
		if err := a.sandbox.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop sandbox")
		}
	}
	if a.memory != nil {
		if err := a.memory.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close memory store")
		}
	}
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		a.logger.Debug().Err(err).Msg("Tracing shutdown failed")
	}
	_ = observability.GetAuditLogger().Close()
	if a.log != nil {
		_ = a.log.Close()
	}
}
