package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the pymol-agent configuration
type Config struct {
	// AI providers and generation settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Dual-tier memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// PyMOL process execution
	PyMOL PyMOLConfig `json:"pymol" mapstructure:"pymol"`

	// Process sandbox used for PyMOL and X11 tools
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`

	// Desktop automation
	Desktop DesktopConfig `json:"desktop" mapstructure:"desktop"`

	// Capability allow/deny policy
	Tools ToolPolicyConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// OpenTelemetry spans
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory, defaults to ~/.pymol-agent
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Model        string      `json:"model" mapstructure:"model"`
	Temperature  float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int         `json:"max_tokens" mapstructure:"max_tokens"`
	MaxToolTurns int         `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	SystemPrompt string      `json:"system_prompt" mapstructure:"system_prompt"`
	Profiles     []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // gemini, anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// MemoryConfig holds the memory manager settings and the host's
// importance policy for recorded turns.
type MemoryConfig struct {
	Path                string  `json:"path" mapstructure:"path"`
	Backend             string  `json:"backend" mapstructure:"backend"` // json, sqlite
	MaxShortTerm        int     `json:"max_short_term" mapstructure:"max_short_term"`
	PromotionThreshold  float64 `json:"promotion_threshold" mapstructure:"promotion_threshold"`
	UserTurnImportance  float64 `json:"user_turn_importance" mapstructure:"user_turn_importance"`
	AgentTurnImportance float64 `json:"agent_turn_importance" mapstructure:"agent_turn_importance"`
	ErrorImportance     float64 `json:"error_importance" mapstructure:"error_importance"`
	ContextLimit        int     `json:"context_limit" mapstructure:"context_limit"`
	Watch               bool    `json:"watch" mapstructure:"watch"`
}

// PyMOLConfig holds PyMOL executor settings
type PyMOLConfig struct {
	Path    string `json:"path" mapstructure:"path"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
	WorkDir string `json:"work_dir" mapstructure:"work_dir"`
}

// SandboxConfig selects the process runtime
type SandboxConfig struct {
	Runtime  string  `json:"runtime" mapstructure:"runtime"` // host, docker
	Image    string  `json:"image" mapstructure:"image"`
	Network  string  `json:"network" mapstructure:"network"`
	MemoryMB int     `json:"memory_mb" mapstructure:"memory_mb"`
	CPUs     float64 `json:"cpus" mapstructure:"cpus"`
}

// DesktopConfig holds desktop automation settings
type DesktopConfig struct {
	Display        string `json:"display" mapstructure:"display"`
	TypeIntervalMs int    `json:"type_interval_ms" mapstructure:"type_interval_ms"`
	ScreenshotDir  string `json:"screenshot_dir" mapstructure:"screenshot_dir"`
}

// ToolPolicyConfig defines capability access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig controls span sampling. A ratio of 0 records nothing.
type TracingConfig struct {
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Model:        "gemini-2.5-pro",
			Temperature:  0.1,
			MaxTokens:    8192,
			MaxToolTurns: 10,
			Profiles:     []AIProfile{},
		},
		Memory: MemoryConfig{
			Backend:             "json",
			MaxShortTerm:        10,
			PromotionThreshold:  0.7,
			UserTurnImportance:  0.8,
			AgentTurnImportance: 0.9,
			ErrorImportance:     1.0,
			ContextLimit:        5,
			Watch:               true,
		},
		PyMOL: PyMOLConfig{
			Path:    "pymol",
			Timeout: 30,
		},
		Sandbox: SandboxConfig{
			Runtime: "host",
			Image:   "pegi3s/pymol",
			Network: "none",
		},
		Desktop: DesktopConfig{
			TypeIntervalMs: 100,
		},
		Tools: ToolPolicyConfig{
			Allow: []string{"*"},
			Deny:  []string{},
		},
		Logging: LoggingConfig{
			Level:     "warn",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config with API keys masked
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		p.APIKey = MaskKey(p.APIKey)
		masked.AI.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// ProfileFor returns the highest priority profile for provider.
func (c *Config) ProfileFor(provider string) (AIProfile, bool) {
	var best AIProfile
	found := false
	for _, p := range c.AI.Profiles {
		if p.Provider != provider {
			continue
		}
		if !found || p.Priority < best.Priority {
			best = p
			found = true
		}
	}
	return best, found
}

var validProviders = []string{"gemini", "anthropic", "openai"}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if !contains(validProviders, profile.Provider) {
			return fmt.Errorf("AI profile %s: invalid provider %q (must be: %s)", profile.ID, profile.Provider, strings.Join(validProviders, ", "))
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2, got %v", c.AI.Temperature)
	}
	if c.AI.MaxToolTurns < 1 {
		return fmt.Errorf("ai.max_tool_turns must be >= 1")
	}

	if strings.TrimSpace(c.Memory.Path) == "" {
		return fmt.Errorf("memory.path is required")
	}
	if c.Memory.Backend != "json" && c.Memory.Backend != "sqlite" {
		return fmt.Errorf("memory.backend must be json or sqlite, got %q", c.Memory.Backend)
	}
	if c.Memory.MaxShortTerm < 1 {
		return fmt.Errorf("memory.max_short_term must be >= 1")
	}
	if c.Memory.ContextLimit < 0 {
		return fmt.Errorf("memory.context_limit must be >= 0")
	}

	if c.PyMOL.Timeout < 0 {
		return fmt.Errorf("pymol.timeout must be >= 0")
	}
	if c.Sandbox.Runtime != "host" && c.Sandbox.Runtime != "docker" {
		return fmt.Errorf("sandbox.runtime must be host or docker, got %q", c.Sandbox.Runtime)
	}
	if c.Desktop.TypeIntervalMs < 0 {
		return fmt.Errorf("desktop.type_interval_ms must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
