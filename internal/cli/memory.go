package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/pymolagent/pkg/memory"
)

var (
	memoryJSON       bool
	memorySearchMax  int
	memoryImportance float64
	memoryTags       []string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and edit long-term memory",
	Long: `Inspect and edit the agent's persisted long-term memory.
Short-term memory lives only for the length of a chat session.`,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List long-term memory items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(m *memory.Manager) error {
			return printItems(cmd.OutOrStdout(), m.LongTerm(), memoryJSON)
		})
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory by keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(m *memory.Manager) error {
			items := m.SearchMemoryContext(cmd.Context(), strings.Join(args, " "), memorySearchMax)
			return printItems(cmd.OutOrStdout(), items, memoryJSON)
		})
	},
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a fact in long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if memoryImportance < 0 || memoryImportance > 1 {
			return fmt.Errorf("importance must be between 0 and 1")
		}
		return withMemory(cmd, func(m *memory.Manager) error {
			content := strings.Join(args, " ")
			m.AddLongTerm(content, memory.WithImportance(memoryImportance), memory.WithTags(memoryTags...))
			fmt.Fprintf(cmd.OutOrStdout(), "Remembered: %s\n", content)
			return nil
		})
	},
}

var memorySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show memory statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(m *memory.Manager) error {
			stats := m.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Long-term items: %d\n", stats.LongTerm)
			fmt.Fprintf(out, "Short-term capacity: %d\n", m.MaxShortTerm())
			if path := m.StorePath(); path != "" {
				fmt.Fprintf(out, "Store: %s\n", path)
			}
			return nil
		})
	},
}

func init() {
	memoryCmd.PersistentFlags().BoolVar(&memoryJSON, "json", false, "print items as JSON")
	memorySearchCmd.Flags().IntVar(&memorySearchMax, "limit", memory.DefaultSearchLimit, "maximum number of results")
	memoryAddCmd.Flags().Float64Var(&memoryImportance, "importance", 1.0, "importance between 0 and 1")
	memoryAddCmd.Flags().StringSliceVar(&memoryTags, "tags", nil, "comma separated tags")

	memoryCmd.AddCommand(memoryListCmd, memorySearchCmd, memoryAddCmd, memorySummaryCmd)
	rootCmd.AddCommand(memoryCmd)
}

func withMemory(cmd *cobra.Command, fn func(m *memory.Manager) error) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a.memory)
}

func printItems(out io.Writer, items []memory.Item, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No memories found.")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(out, "[%s] (%.2f) %s", it.Timestamp.Local().Format(time.DateTime), it.Importance, it.Content)
		if len(it.Tags) > 0 {
			fmt.Fprintf(out, " #%s", strings.Join(it.Tags, " #"))
		}
		fmt.Fprintln(out)
	}
	return nil
}
