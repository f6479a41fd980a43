package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Runtime selects where commands run.
type Runtime string

const (
	// RuntimeHost runs commands directly on the host
	RuntimeHost Runtime = "host"
	// RuntimeDocker runs each command in an ephemeral container
	RuntimeDocker Runtime = "docker"
)

// Config defines sandbox configuration
type Config struct {
	// Runtime selects host or docker execution
	Runtime Runtime `json:"runtime"`

	// ResourceLimits defines resource constraints
	ResourceLimits ResourceLimits `json:"resource_limits"`

	// FilesystemAccess restricts working directories
	FilesystemAccess FilesystemAccess `json:"filesystem_access"`

	// NetworkAccess controls container networking
	NetworkAccess NetworkAccess `json:"network_access"`

	// Docker holds container settings for RuntimeDocker
	Docker DockerConfig `json:"docker"`

	// PassEnv names host environment variables copied into every command.
	// X11 tools need DISPLAY and XAUTHORITY.
	PassEnv []string `json:"pass_env"`
}

// ResourceLimits defines resource constraints for sandboxed execution
type ResourceLimits struct {
	// MaxCPU limits CPU usage (percentage, 0-100). Docker only.
	MaxCPU int `json:"max_cpu"`

	// MaxMemoryMB limits memory usage in megabytes. Docker only.
	MaxMemoryMB int `json:"max_memory_mb"`

	// Timeout is the default execution timeout
	Timeout time.Duration `json:"timeout"`
}

// FilesystemAccess defines filesystem access rules
type FilesystemAccess struct {
	// AllowedPaths lists working directory prefixes. Empty allows any path
	// that is not denied.
	AllowedPaths []string `json:"allowed_paths"`

	// DeniedPaths lists prefixes that can never be a working directory
	DeniedPaths []string `json:"denied_paths"`

	// ReadOnly mounts volumes read-only in containers
	ReadOnly bool `json:"read_only"`
}

// NetworkAccess defines network access rules
type NetworkAccess struct {
	Enabled bool `json:"enabled"`
}

// DockerConfig defines container settings
type DockerConfig struct {
	Image     string   `json:"image"`
	Network   string   `json:"network"`
	User      string   `json:"user"`
	ExtraArgs []string `json:"extra_args"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	// Command is the command to execute
	Command string `json:"command"`

	// Args are the command arguments
	Args []string `json:"args"`

	// Env are extra environment variables
	Env map[string]string `json:"env"`

	// WorkingDir is the working directory
	WorkingDir string `json:"working_dir"`

	// Stdin is the standard input
	Stdin []byte `json:"stdin"`

	// Timeout overrides the configured timeout when non-zero
	Timeout time.Duration `json:"timeout"`
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`

	// Error is set when the process could not be started or was killed
	// without an exit status.
	Error error `json:"error,omitempty"`
}

// Sandbox defines the interface for sandboxed execution
type Sandbox interface {
	// Execute runs a command in the sandbox
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)

	// Start initializes the sandbox
	Start(ctx context.Context) error

	// Stop cleans up the sandbox
	Stop(ctx context.Context) error

	// IsRunning returns whether the sandbox is running
	IsRunning() bool

	// GetConfig returns the sandbox configuration
	GetConfig() Config
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeHost,
		ResourceLimits: ResourceLimits{
			MaxCPU:      0,
			MaxMemoryMB: 0,
			Timeout:     30 * time.Second,
		},
		FilesystemAccess: FilesystemAccess{
			AllowedPaths: []string{},
			DeniedPaths:  []string{"/etc", "/sys", "/proc"},
		},
		NetworkAccess: NetworkAccess{Enabled: false},
		Docker: DockerConfig{
			Image: "pegi3s/pymol",
		},
		PassEnv: []string{"PATH", "HOME", "DISPLAY", "XAUTHORITY", "LANG"},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeHost:
	case RuntimeDocker:
		if cfg.Docker.Image == "" {
			return ErrDockerImageRequired
		}
	default:
		return ErrInvalidRuntime
	}

	if cfg.ResourceLimits.MaxCPU < 0 || cfg.ResourceLimits.MaxCPU > 100 {
		return ErrInvalidCPULimit
	}

	if cfg.ResourceLimits.MaxMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}

	if cfg.ResourceLimits.Timeout < 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// New creates a sandbox for cfg.Runtime. The sandbox is not started.
func New(cfg Config) (Sandbox, error) {
	switch cfg.Runtime {
	case "", RuntimeHost:
		if cfg.Runtime == "" {
			cfg.Runtime = RuntimeHost
		}
		return NewHostSandbox(cfg)
	case RuntimeDocker:
		if err := CheckDocker(); err != nil {
			return nil, err
		}
		return NewDockerSandbox(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRuntime, cfg.Runtime)
	}
}
