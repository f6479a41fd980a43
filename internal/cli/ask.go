package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message to the agent and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{withAgent: true})
		if err != nil {
			return err
		}
		defer a.close()

		reply, err := a.agent.ProcessMessage(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

var demoQueries = map[string][]string{
	"basic": {
		"Hello! What can you help me with regarding molecular visualization?",
		"Can you explain what PyMOL is and what it's used for?",
		"How would I load a protein structure in PyMOL?",
		"What are the different ways to visualize molecules?",
		"Can you help me understand molecular representations?",
	},
	"tools": {
		"Can you take a screenshot of my current screen?",
		"What windows do I have open on my desktop?",
		"How would you analyze a molecular image if I provided one?",
		"What PyMOL command would I use to load a PDB file named 'protein.pdb'?",
		"How do I set the representation to cartoon in PyMOL?",
		"Describe the workflow for loading a protein, setting it to cartoon representation, and coloring it by secondary structure.",
	},
}

var demoCmd = &cobra.Command{
	Use:       "demo [basic|tools]",
	Short:     "Run a scripted set of queries through the agent",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"basic", "tools"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "basic"
		if len(args) == 1 {
			mode = args[0]
		}

		a, err := newApp(cmd.Context(), appOptions{withAgent: true})
		if err != nil {
			return err
		}
		defer a.close()

		return runDemo(cmd.Context(), cmd.OutOrStdout(), mode, a.agent)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(demoCmd)
}

func runDemo(ctx context.Context, out io.Writer, mode string, agent turnProcessor) error {
	queries, ok := demoQueries[mode]
	if !ok {
		return fmt.Errorf("unknown demo mode: %s", mode)
	}

	label := "Query"
	if mode == "tools" {
		label = "Tool Test"
	}
	for i, query := range queries {
		fmt.Fprintf(out, "\n--- %s %d ---\n", label, i+1)
		fmt.Fprintf(out, "User: %s\n", query)
		fmt.Fprint(out, "Agent: ")
		reply, err := agent.ProcessMessage(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
	return nil
}
