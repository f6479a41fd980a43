package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. PYMOL_AGENT_MEMORY_PATH.
	EnvPrefix = "PYMOL_AGENT"

	defaultDirName  = ".pymol-agent"
	defaultFileName = "config.json"
)

// envKeys are the settings that may be overridden from the environment
// without appearing in the config file.
var envKeys = []string{
	"data_dir",
	"ai.model",
	"ai.temperature",
	"ai.max_tool_turns",
	"memory.path",
	"memory.backend",
	"memory.max_short_term",
	"memory.promotion_threshold",
	"memory.user_turn_importance",
	"memory.agent_turn_importance",
	"memory.watch",
	"pymol.timeout",
	"pymol.work_dir",
	"sandbox.runtime",
	"sandbox.image",
	"desktop.display",
	"logging.level",
	"logging.file",
	"metrics.enabled",
	"metrics.addr",
	"tracing.sample_ratio",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when present, applies environment overrides and
// fills derived paths. A missing file yields defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvironment(cfg)

	if err := fillPaths(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvironment honours the conventional variables used by PyMOL and the
// provider SDKs. Provider keys only seed profiles when none are configured.
func applyEnvironment(cfg *Config) {
	if path := strings.TrimSpace(os.Getenv("PYMOL_PATH")); path != "" {
		cfg.PyMOL.Path = path
	}
	if cfg.Desktop.Display == "" {
		cfg.Desktop.Display = os.Getenv("DISPLAY")
	}

	if len(cfg.AI.Profiles) > 0 {
		return
	}

	if key := GeminiKeyFromEnv(); key != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "gemini-env",
			Provider: "gemini",
			APIKey:   key,
			Priority: 0,
		})
	}
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "anthropic-env",
			Provider: "anthropic",
			APIKey:   key,
			Model:    "claude-sonnet-4-20250514",
			Priority: 1,
		})
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "openai-env",
			Provider: "openai",
			APIKey:   key,
			Model:    "gpt-4o",
			Priority: 2,
		})
	}
}

// GeminiKeyFromEnv returns GEMINI_API_KEY, falling back to GOOGLE_API_KEY.
func GeminiKeyFromEnv() string {
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
}

func fillPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDirName)
	}

	if cfg.Memory.Path == "" {
		name := "memory.json"
		if cfg.Memory.Backend == "sqlite" {
			name = "memory.db"
		}
		cfg.Memory.Path = filepath.Join(cfg.DataDir, name)
	}
	if cfg.PyMOL.WorkDir == "" {
		cfg.PyMOL.WorkDir = filepath.Join(cfg.DataDir, "pymol")
	}
	if cfg.Desktop.ScreenshotDir == "" {
		cfg.Desktop.ScreenshotDir = filepath.Join(cfg.DataDir, "screenshots")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "pymol-agent.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	return nil
}

// Save writes cfg to the loader's path as JSON.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("memory", cfg.Memory)
	v.Set("pymol", cfg.PyMOL)
	v.Set("sandbox", cfg.Sandbox)
	v.Set("desktop", cfg.Desktop)
	v.Set("tools", cfg.Tools)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName, defaultFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
