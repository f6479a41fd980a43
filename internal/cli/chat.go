package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harun/pymolagent/internal/observability"
	"github.com/harun/pymolagent/internal/tracing"
)

var metricsAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session with the PyMOL Learning Agent.
Type 'quit' to exit and 'status' to show the agent status. Ctrl+C cancels the
current turn without ending the session.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(chatCmd)
}

// turnProcessor is the part of the agent the REPL drives.
type turnProcessor interface {
	ProcessMessage(ctx context.Context, message string) (string, error)
	Status() string
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, appOptions{withAgent: true, watchMemory: true})
	if err != nil {
		return err
	}
	defer a.close()

	// every turn of this REPL shares one session id in logs and spans
	ctx = tracing.NewSessionContext(ctx)
	a.logger.Debug().Str("session_id", tracing.GetSessionID(ctx)).Msg("Chat session started")

	addr := metricsAddr
	if addr == "" && a.cfg.Metrics.Enabled {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := startMetricsServer(addr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	return runREPL(ctx, replIO{
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}, a.agent, sig)
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	observability.EnsureRegistered()

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

type replIO struct {
	in  io.Reader
	out io.Writer
	// interactive shows the "You:" prompt.
	interactive bool
}

// runREPL reads one message per line until quit, EOF or ctx ends. A signal
// received during a turn cancels that turn only; SIGTERM ends the session.
func runREPL(ctx context.Context, rio replIO, agent turnProcessor, sig <-chan os.Signal) error {
	out := rio.out
	banner := strings.Repeat("=", 60)
	fmt.Fprintln(out, banner)
	fmt.Fprintln(out, "PyMOL Learning Agent - Interactive Session")
	fmt.Fprintln(out, "Type 'quit' to exit, 'status' for agent status")
	fmt.Fprintln(out, banner)

	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(rio.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if rio.interactive {
			fmt.Fprint(out, "\nYou: ")
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case s := <-sig:
			if s == syscall.SIGTERM {
				fmt.Fprintln(out, "\nSession interrupted.")
				return nil
			}
			fmt.Fprintln(out, "\nSession interrupted. Type 'quit' to exit.")
			continue
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(out, "\nGoodbye!")
			return nil
		case line = <-lines:
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "status":
			fmt.Fprintf(out, "\nAgent Status:\n%s\n", agent.Status())
			continue
		case "":
			continue
		}

		fmt.Fprint(out, "Agent: ")
		reply, interrupted, err := runTurn(ctx, agent, input, sig)
		switch {
		case interrupted:
			fmt.Fprintln(out, "\nSession interrupted. Type 'quit' to exit.")
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "\nError: %v\n", err)
		default:
			fmt.Fprintln(out, reply)
		}
	}
}

// runTurn processes one message, cancelling it when a signal arrives.
func runTurn(ctx context.Context, agent turnProcessor, input string, sig <-chan os.Signal) (string, bool, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		reply string
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := agent.ProcessMessage(turnCtx, input)
		done <- outcome{reply, err}
	}()

	select {
	case o := <-done:
		return o.reply, false, o.err
	case <-sig:
		cancel()
		<-done
		return "", true, nil
	}
}
