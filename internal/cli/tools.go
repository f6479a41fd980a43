package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harun/pymolagent/pkg/capability"
	"github.com/harun/pymolagent/pkg/toolexecutor"
)

var (
	toolsGroup string
	toolsJSON  bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the agent's capabilities",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List capabilities and whether the tool policy allows them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return listTools(cmd.OutOrStdout(), capability.Specs(), toolPolicy(cfg), toolsGroup, toolsJSON)
	},
}

var toolsSchemaCmd = &cobra.Command{
	Use:   "schema <name>",
	Short: "Print the JSON Schema of one capability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, ok := capability.SpecFor(capability.Kind(args[0]))
		if !ok {
			return fmt.Errorf("unknown capability: %s", args[0])
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(spec.Schema)
	},
}

func init() {
	toolsListCmd.Flags().StringVar(&toolsGroup, "group", "", "only list one group (general, memory, pymol, vision, desktop, inspector)")
	toolsListCmd.Flags().BoolVar(&toolsJSON, "json", false, "print specs as JSON")

	toolsCmd.AddCommand(toolsListCmd, toolsSchemaCmd)
	rootCmd.AddCommand(toolsCmd)
}

func listTools(out io.Writer, specs []capability.Spec, policy *toolexecutor.ToolPolicy, group string, asJSON bool) error {
	filtered := make([]capability.Spec, 0, len(specs))
	for _, spec := range specs {
		if group == "" || string(spec.Group) == group {
			filtered = append(filtered, spec)
		}
	}
	if len(filtered) == 0 {
		return fmt.Errorf("no capabilities in group %q", group)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(filtered)
	}

	names := make([]string, 0, len(filtered))
	for _, spec := range filtered {
		names = append(names, string(spec.Kind))
	}
	allowed := make(map[string]bool)
	for _, name := range toolexecutor.FilterToolsByPolicy(names, policy) {
		allowed[name] = true
	}

	for _, spec := range filtered {
		mark := "✓"
		if !allowed[string(spec.Kind)] {
			mark = "✗"
		}
		fmt.Fprintf(out, "%s %-28s [%s] %s\n", mark, spec.Kind, spec.Group, spec.Description)
	}
	fmt.Fprintf(out, "\nTotal: %d\n", len(filtered))
	return nil
}
