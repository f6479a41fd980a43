package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CheckDocker verifies that the Docker daemon is available and responsive.
func CheckDocker() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "ps", "-q")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker is not available or not running: %w", err)
	}
	return nil
}

// DockerSandbox runs each command in a fresh "docker run --rm" container, for
// hosts where PyMOL is only available as an image.
type DockerSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewDockerSandbox creates a new Docker-based sandbox.
func NewDockerSandbox(config Config) (*DockerSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeDocker
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DockerSandbox{
		config:  config,
		running: false,
	}, nil
}

// Start initializes the Docker sandbox.
func (d *DockerSandbox) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrSandboxAlreadyRunning
	}

	log.Debug().
		Str("runtime", string(RuntimeDocker)).
		Str("image", d.config.Docker.Image).
		Msg("Starting docker sandbox")

	d.running = true
	return nil
}

// Stop marks the Docker sandbox as stopped.
func (d *DockerSandbox) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrSandboxNotRunning
	}

	log.Debug().Msg("Stopping docker sandbox")
	d.running = false
	return nil
}

// IsRunning returns whether the sandbox is currently running.
func (d *DockerSandbox) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetConfig returns sandbox configuration.
func (d *DockerSandbox) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Execute runs a command inside an ephemeral Docker container.
func (d *DockerSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := d.config
	d.mu.RUnlock()

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

	args := buildDockerRunArgs(cfg, req)
	result, err := runProcess(ctx, timeout, "docker", args, "", buildEnvironment([]string{"PATH", "HOME", "DOCKER_HOST"}, nil), req.Stdin)

	log.Debug().
		Str("runtime", string(RuntimeDocker)).
		Str("image", cfg.Docker.Image).
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Err(err).
		Msg("Command executed in docker sandbox")

	return result, err
}

// buildDockerRunArgs maps a request onto a "docker run" invocation. The
// working directory and allowed paths are bind-mounted at the same location,
// and passed-through host variables are forwarded with -e.
func buildDockerRunArgs(cfg Config, req ExecuteRequest) []string {
	args := []string{"run", "--rm", "--init"}

	networkMode := strings.TrimSpace(cfg.Docker.Network)
	if networkMode == "" {
		if cfg.NetworkAccess.Enabled {
			networkMode = "bridge"
		} else {
			networkMode = "none"
		}
	}
	args = append(args, "--network", networkMode)

	if cfg.ResourceLimits.MaxCPU > 0 {
		cpus := float64(cfg.ResourceLimits.MaxCPU) / 100.0
		args = append(args, "--cpus", strconv.FormatFloat(cpus, 'f', 2, 64))
	}
	if cfg.ResourceLimits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", cfg.ResourceLimits.MaxMemoryMB))
	}

	if cfg.FilesystemAccess.ReadOnly {
		args = append(args, "--read-only")
	}

	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	volumeMode := "rw"
	if cfg.FilesystemAccess.ReadOnly {
		volumeMode = "ro"
	}

	mounts := make(map[string]struct{})
	if wd := strings.TrimSpace(req.WorkingDir); wd != "" {
		mounts[filepath.Clean(wd)] = struct{}{}
	}
	for _, allowed := range cfg.FilesystemAccess.AllowedPaths {
		if trimmed := strings.TrimSpace(allowed); trimmed != "" {
			mounts[filepath.Clean(trimmed)] = struct{}{}
		}
	}

	paths := make([]string, 0, len(mounts))
	for path := range mounts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", path, path, volumeMode))
	}

	if wd := strings.TrimSpace(req.WorkingDir); wd != "" {
		args = append(args, "-w", filepath.Clean(wd))
	}

	for _, name := range cfg.PassEnv {
		// the image supplies its own PATH and HOME
		if name == "PATH" || name == "HOME" {
			continue
		}
		if value, ok := os.LookupEnv(name); ok {
			args = append(args, "-e", name+"="+value)
		}
	}
	envKeys := make([]string, 0, len(req.Env))
	for key := range req.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, req.Env[key]))
	}

	if len(req.Stdin) > 0 {
		args = append(args, "-i")
	}

	image := strings.TrimSpace(cfg.Docker.Image)
	if image == "" {
		image = DefaultConfig().Docker.Image
	}
	args = append(args, image, req.Command)
	args = append(args, req.Args...)

	return args
}
