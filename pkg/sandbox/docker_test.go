package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDockerSandbox_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker

	sb, err := NewDockerSandbox(cfg)
	require.NoError(t, err)
	assert.False(t, sb.IsRunning())

	require.NoError(t, sb.Start(context.Background()))
	assert.True(t, sb.IsRunning())

	require.NoError(t, sb.Stop(context.Background()))
	assert.False(t, sb.IsRunning())
}

func TestDockerSandbox_ExecuteNotRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker

	sb, err := NewDockerSandbox(cfg)
	require.NoError(t, err)

	_, err = sb.Execute(context.Background(), ExecuteRequest{Command: "pymol"})
	assert.ErrorIs(t, err, ErrSandboxNotRunning)
}

func TestBuildDockerRunArgs(t *testing.T) {
	t.Setenv("DISPLAY", ":1")

	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker
	cfg.ResourceLimits.MaxCPU = 50
	cfg.ResourceLimits.MaxMemoryMB = 256
	cfg.FilesystemAccess.ReadOnly = true
	cfg.FilesystemAccess.AllowedPaths = []string{"/tmp/workspace"}

	req := ExecuteRequest{
		Command:    "pymol",
		Args:       []string{"-cq", "/tmp/workspace/a.pml"},
		WorkingDir: "/tmp/workspace",
		Env:        map[string]string{"FOO": "bar"},
		Timeout:    5 * time.Second,
	}

	args := buildDockerRunArgs(cfg, req)

	assert.Equal(t, []string{"run", "--rm", "--init"}, args[:3])
	assert.Contains(t, args, "none")
	assert.Contains(t, args, "0.50")
	assert.Contains(t, args, "256m")
	assert.Contains(t, args, "--read-only")
	assert.Contains(t, args, "/tmp/workspace:/tmp/workspace:ro")
	assert.Contains(t, args, "-w")
	assert.Contains(t, args, "DISPLAY=:1")
	assert.Contains(t, args, "FOO=bar")
	assert.Equal(t, []string{"pegi3s/pymol", "pymol", "-cq", "/tmp/workspace/a.pml"}, args[len(args)-4:])
}

func TestBuildDockerRunArgs_Network(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker
	cfg.NetworkAccess.Enabled = true

	args := buildDockerRunArgs(cfg, ExecuteRequest{Command: "true"})
	assert.Contains(t, args, "bridge")

	cfg.Docker.Network = "host"
	args = buildDockerRunArgs(cfg, ExecuteRequest{Command: "true"})
	assert.Contains(t, args, "host")
	assert.NotContains(t, args, "bridge")
}
