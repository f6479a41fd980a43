package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, RuntimeHost, cfg.Runtime)
	assert.Equal(t, 30*time.Second, cfg.ResourceLimits.Timeout)
	assert.Equal(t, "pegi3s/pymol", cfg.Docker.Image)
	assert.Contains(t, cfg.PassEnv, "DISPLAY")
	assert.False(t, cfg.NetworkAccess.Enabled)
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown runtime", func(c *Config) { c.Runtime = Runtime("vm") }, ErrInvalidRuntime},
		{"docker without image", func(c *Config) { c.Runtime = RuntimeDocker; c.Docker.Image = "" }, ErrDockerImageRequired},
		{"negative cpu", func(c *Config) { c.ResourceLimits.MaxCPU = -1 }, ErrInvalidCPULimit},
		{"cpu above 100", func(c *Config) { c.ResourceLimits.MaxCPU = 101 }, ErrInvalidCPULimit},
		{"negative memory", func(c *Config) { c.ResourceLimits.MaxMemoryMB = -1 }, ErrInvalidMemoryLimit},
		{"negative timeout", func(c *Config) { c.ResourceLimits.Timeout = -time.Second }, ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, ValidateConfig(cfg), tt.want)
		})
	}
}

func TestNew_SelectsRuntime(t *testing.T) {
	sb, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &HostSandbox{}, sb)

	cfg := DefaultConfig()
	cfg.Runtime = ""
	sb, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, RuntimeHost, sb.GetConfig().Runtime)

	cfg.Runtime = Runtime("firecracker")
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidRuntime)
}

func TestCheckFilesystemAccess(t *testing.T) {
	rules := FilesystemAccess{
		AllowedPaths: []string{"/tmp", "/home"},
		DeniedPaths:  []string{"/etc"},
	}

	assert.NoError(t, checkFilesystemAccess(rules, ""))
	assert.NoError(t, checkFilesystemAccess(rules, "/tmp/pymol"))
	assert.NoError(t, checkFilesystemAccess(rules, "/home/user/../user/work"))
	assert.ErrorIs(t, checkFilesystemAccess(rules, "/etc/passwd"), ErrFilesystemAccessDenied)
	assert.ErrorIs(t, checkFilesystemAccess(rules, "/var/lib"), ErrFilesystemAccessDenied)

	// a shared string prefix is not a parent directory
	assert.ErrorIs(t, checkFilesystemAccess(rules, "/tmpfoo"), ErrFilesystemAccessDenied)

	open := FilesystemAccess{DeniedPaths: []string{"/proc"}}
	assert.NoError(t, checkFilesystemAccess(open, "/var/lib"))
	assert.ErrorIs(t, checkFilesystemAccess(open, "/proc/1"), ErrFilesystemAccessDenied)
}

func TestBuildEnvironment(t *testing.T) {
	t.Setenv("DISPLAY", ":99")
	t.Setenv("SECRET_TOKEN", "nope")

	env := buildEnvironment([]string{"DISPLAY", "UNSET_FOR_TEST"}, map[string]string{"B": "2", "A": "1"})

	assert.Contains(t, env, "DISPLAY=:99")
	assert.Contains(t, env, "PATH="+defaultPath)
	assert.NotContains(t, env, "SECRET_TOKEN=nope")
	assert.Equal(t, []string{"A=1", "B=2"}, env[len(env)-2:])
}

func TestRuntime_Constants(t *testing.T) {
	assert.Equal(t, Runtime("host"), RuntimeHost)
	assert.Equal(t, Runtime("docker"), RuntimeDocker)
}
