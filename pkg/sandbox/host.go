package sandbox

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

// HostSandbox runs commands as child processes of the agent, with a reduced
// environment and a working-directory policy.
type HostSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{
		config:  config,
		running: false,
	}, nil
}

// Start initializes the sandbox
func (h *HostSandbox) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrSandboxAlreadyRunning
	}

	log.Debug().
		Str("runtime", string(RuntimeHost)).
		Dur("timeout", h.config.ResourceLimits.Timeout).
		Msg("Starting host sandbox")

	h.running = true
	return nil
}

// Stop cleans up the sandbox
func (h *HostSandbox) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrSandboxNotRunning
	}

	log.Debug().Msg("Stopping host sandbox")

	h.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (h *HostSandbox) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// GetConfig returns the sandbox configuration
func (h *HostSandbox) GetConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Execute runs a command on the host
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := h.config
	h.mu.RUnlock()

	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrCommandRequired
	}

	if err := checkFilesystemAccess(cfg.FilesystemAccess, req.WorkingDir); err != nil {
		return ExecuteResult{}, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = cfg.ResourceLimits.Timeout
	}

	result, err := runProcess(ctx, timeout, req.Command, req.Args, req.WorkingDir, buildEnvironment(cfg.PassEnv, req.Env), req.Stdin)

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Err(err).
		Msg("Command executed in sandbox")

	return result, err
}

// buildEnvironment copies the passed-through host variables, then the
// request variables in key order. PATH always has a value.
func buildEnvironment(passEnv []string, env map[string]string) []string {
	result := make([]string, 0, len(passEnv)+len(env)+1)
	hasPath := false

	for _, name := range passEnv {
		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if name == "PATH" {
			hasPath = true
		}
		result = append(result, name+"="+value)
	}
	if !hasPath {
		result = append(result, "PATH="+defaultPath)
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, key+"="+env[key])
	}

	return result
}

// SetConfig updates the sandbox configuration
func (h *HostSandbox) SetConfig(config Config) error {
	if err := ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.config = config
	return nil
}
