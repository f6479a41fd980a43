package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/pymolagent/internal/config"
	"github.com/harun/pymolagent/pkg/agent"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long:  `Show the agent status: memory, active model, provider profiles and capabilities.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{withAgent: true})
		if err != nil {
			return err
		}
		defer a.close()

		printStatus(cmd.OutOrStdout(), a.cfg, a.agent)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(out io.Writer, cfg *config.Config, ag *agent.Agent) {
	fmt.Fprintln(out, ag.Status())
	fmt.Fprintf(out, "Memory store: %s (%s)\n", cfg.Memory.Path, cfg.Memory.Backend)
	fmt.Fprintf(out, "Sandbox: %s\n", cfg.Sandbox.Runtime)

	profiles := ag.Profiles()
	if len(profiles) == 0 {
		fmt.Fprintln(out, "Providers: none (set GEMINI_API_KEY)")
		return
	}
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, fmt.Sprintf("%s/%s", p.Provider, p.ID))
	}
	fmt.Fprintf(out, "Providers: %s\n", strings.Join(names, ", "))
}
