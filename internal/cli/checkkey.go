package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/harun/pymolagent/internal/config"
	"github.com/harun/pymolagent/pkg/agent"
)

var checkKeyOffline bool

var errNoAPIKey = errors.New("no API key found")

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Diagnose the Gemini API key",
	Long: `Inspect GEMINI_API_KEY (or GOOGLE_API_KEY) for common formatting problems and
make one live request with it. Use --offline to skip the request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		var probe keyProbe
		if !checkKeyOffline {
			probe = geminiProbe
		}
		return runCheckKey(cmd.Context(), cmd.OutOrStdout(), config.GeminiKeyFromEnv(), probe)
	},
}

func init() {
	checkKeyCmd.Flags().BoolVar(&checkKeyOffline, "offline", false, "only check the key format")
	rootCmd.AddCommand(checkKeyCmd)
}

// keyProbe sends one prompt with key and returns the reply text.
type keyProbe func(ctx context.Context, key string) (string, error)

func geminiProbe(ctx context.Context, key string) (string, error) {
	provider, err := agent.NewGeminiProvider(key)
	if err != nil {
		return "", err
	}
	resp, err := provider.Call(ctx, agent.LLMRequest{
		Model:       agent.DefaultModel,
		Messages:    []agent.AgentMessage{{Role: "user", Content: "Say hello"}},
		Temperature: agent.DefaultTemperature,
		MaxTokens:   256,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func runCheckKey(ctx context.Context, out io.Writer, key string, probe keyProbe) error {
	banner := strings.Repeat("=", 60)
	fmt.Fprintln(out, banner)
	fmt.Fprintln(out, "API Key Diagnostic Test")
	fmt.Fprintln(out, banner)

	report := config.DiagnoseGeminiKey(key)
	if !report.Present {
		fmt.Fprintln(out, "❌ ERROR: No API key found in environment variables")
		fmt.Fprintln(out, "   Checked: GEMINI_API_KEY, GOOGLE_API_KEY")
		return errNoAPIKey
	}

	fmt.Fprintln(out, "✓ API key found")
	fmt.Fprintf(out, "  Length: %d\n", report.Length)
	fmt.Fprintf(out, "  Starts with 'AIza': %t\n", report.HasPrefix)
	fmt.Fprintf(out, "  Preview: %s\n", report.Preview)

	if len(report.Issues) > 0 {
		fmt.Fprintln(out, "\n⚠️  Potential Issues:")
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "  %s\n", formatIssue(issue))
		}
	}

	if probe == nil {
		fmt.Fprintln(out, "\n"+banner)
		return nil
	}

	fmt.Fprintln(out, "\n"+banner)
	fmt.Fprintln(out, "Testing API Call")
	fmt.Fprintln(out, banner)

	reply, err := probe(ctx, strings.TrimSpace(key))
	if err != nil {
		fmt.Fprintf(out, "❌ API call failed: %v\n", err)
		printKeyDiagnosis(out, err)
		fmt.Fprintln(out, "\n"+banner)
		return fmt.Errorf("API call failed: %w", err)
	}

	fmt.Fprintln(out, "✓ API call successful!")
	fmt.Fprintf(out, "  Response: %s...\n", truncateRunes(reply, 100))
	fmt.Fprintln(out, "\n"+banner)
	return nil
}

// formatIssue swaps the report's severity prefix for a marker.
func formatIssue(issue string) string {
	if rest, ok := strings.CutPrefix(issue, "error: "); ok {
		return "❌ " + capitalize(rest)
	}
	if rest, ok := strings.CutPrefix(issue, "warning: "); ok {
		return "⚠️  " + capitalize(rest)
	}
	return issue
}

func printKeyDiagnosis(out io.Writer, err error) {
	msg := err.Error()
	switch {
	case agent.IsAuthError(err):
		fmt.Fprintln(out, "\n🔍 Diagnosis: API Key Authentication Issue")
		fmt.Fprintln(out, "\nPossible causes:")
		fmt.Fprintln(out, "  1. The API key has expired or was revoked")
		fmt.Fprintln(out, "  2. The API key doesn't have Gemini API enabled")
		fmt.Fprintln(out, "  3. The API key has IP/domain restrictions")
		fmt.Fprintln(out, "\nSolutions:")
		fmt.Fprintln(out, "  1. Go to https://aistudio.google.com/apikey")
		fmt.Fprintln(out, "  2. Create a NEW API key (don't reuse an old one)")
		fmt.Fprintln(out, "  3. Make sure 'Generative Language API' is enabled")
		fmt.Fprintln(out, "  4. Check for any restrictions on the key")
		fmt.Fprintln(out, "  5. Update your .env file with the new key")
	case strings.Contains(msg, "400") || strings.Contains(msg, "INVALID_ARGUMENT"):
		fmt.Fprintln(out, "\n🔍 Diagnosis: Invalid Request")
		fmt.Fprintln(out, "   This might be a model name issue or API version issue")
	default:
		fmt.Fprintln(out, "\nThis suggests the API key might be:")
		fmt.Fprintln(out, "  1. Expired or invalid")
		fmt.Fprintln(out, "  2. Not activated for Gemini API")
		fmt.Fprintln(out, "  3. Restricted to other IPs or domains")
		fmt.Fprintln(out, "\nTry:")
		fmt.Fprintln(out, "  - Creating a new API key at https://aistudio.google.com/apikey")
		fmt.Fprintln(out, "  - Checking API key restrictions in Google Cloud Console")
		fmt.Fprintln(out, "  - Ensuring Gemini API is enabled for your project")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
