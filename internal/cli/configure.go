package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/pymolagent/internal/config"
)

var (
	configureForce    bool
	configureSaveKeys bool
	configureModel    string
	configureBackend  string
	configureRuntime  string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write the effective configuration (defaults, the current file and environment
overrides) to the config file, applying any flags given. API keys found in the
environment are left out unless --save-keys is set.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	configureCmd.Flags().BoolVar(&configureSaveKeys, "save-keys", false, "store API keys from the environment in the file")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "default model")
	configureCmd.Flags().StringVar(&configureBackend, "memory-backend", "", "memory backend (json, sqlite)")
	configureCmd.Flags().StringVar(&configureRuntime, "sandbox", "", "sandbox runtime (host, docker)")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("config file %s already exists; use --force to overwrite", configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if configureModel != "" {
		cfg.AI.Model = configureModel
	}
	if configureBackend != "" && configureBackend != cfg.Memory.Backend {
		cfg.Memory.Backend = configureBackend
		cfg.Memory.Path = memoryFileFor(cfg.DataDir, configureBackend)
	}
	if configureRuntime != "" {
		cfg.Sandbox.Runtime = configureRuntime
	}
	if !configureSaveKeys {
		cfg.AI.Profiles = withoutEnvProfiles(cfg.AI.Profiles)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, verr := range config.NewValidator().ValidateConfig(cfg) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", verr)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "\nYou can now start a session with: pymol-agent chat")
	return nil
}

func withoutEnvProfiles(profiles []config.AIProfile) []config.AIProfile {
	out := make([]config.AIProfile, 0, len(profiles))
	for _, p := range profiles {
		if strings.HasSuffix(p.ID, "-env") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func memoryFileFor(dataDir, backend string) string {
	if backend == "sqlite" {
		return filepath.Join(dataDir, "memory.db")
	}
	return filepath.Join(dataDir, "memory.json")
}
