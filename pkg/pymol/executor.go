package pymol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/pymolagent/pkg/sandbox"
)

const (
	DefaultPath    = "pymol"
	DefaultTimeout = 30 * time.Second

	// SuccessMarker is printed by every script after its command completes.
	SuccessMarker = "SUCCESS: Command executed"

	maxSessionCommands = 200
)

// Runner executes one process. sandbox.Sandbox satisfies it.
type Runner interface {
	Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error)
}

// Config configures an Executor.
type Config struct {
	// Path is the PyMOL binary. Defaults to $PYMOL_PATH, then "pymol".
	Path string

	// Timeout bounds one PyMOL run. Defaults to 30s.
	Timeout time.Duration

	// WorkDir holds generated scripts. Defaults to the OS temp dir.
	WorkDir string

	// Replay re-runs the state-changing commands of earlier calls before
	// each new one, so objects loaded in one call are visible to the next.
	Replay bool

	Logger zerolog.Logger
}

// Result mirrors the {success, output|error, command} shape of a run.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Command string `json:"command,omitempty"`
}

// Executor runs PyMOL headless (-cq) against generated Python scripts.
type Executor struct {
	runner  Runner
	path    string
	timeout time.Duration
	workDir string
	replay  bool
	logger  zerolog.Logger

	mu      sync.Mutex
	session []string
}

// NewExecutor creates an executor that runs PyMOL through runner.
func NewExecutor(runner Runner, cfg Config) *Executor {
	e := &Executor{
		runner:  runner,
		path:    cfg.Path,
		timeout: cfg.Timeout,
		workDir: cfg.WorkDir,
		replay:  cfg.Replay,
		logger:  cfg.Logger,
	}
	if e.path == "" {
		e.path = os.Getenv("PYMOL_PATH")
	}
	if e.path == "" {
		e.path = DefaultPath
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.workDir == "" {
		e.workDir = os.TempDir()
	}
	return e
}

// Path returns the PyMOL binary in use.
func (e *Executor) Path() string {
	return e.path
}

// ExecuteCommand runs one line of the PyMOL command language.
func (e *Executor) ExecuteCommand(ctx context.Context, command string) Result {
	result := e.run(ctx, command, "cmd.do("+pyString(command)+")")
	if !result.Success {
		return result
	}
	switch {
	case commandName(command) == "reinitialize":
		e.ResetSession()
	case replayable(command):
		e.remember(command)
	}
	return result
}

// LoadStructure loads a structure file. The file must exist locally.
func (e *Executor) LoadStructure(ctx context.Context, filePath string) Result {
	if _, err := os.Stat(filePath); err != nil {
		return Result{Success: false, Error: "File not found: " + filePath}
	}
	return e.ExecuteCommand(ctx, fmt.Sprintf("load %s", quotePath(filePath)))
}

// GetObjectList prints the names of loaded objects.
func (e *Executor) GetObjectList(ctx context.Context) Result {
	return e.run(ctx, "print(cmd.get_object_list())", "print(cmd.get_object_list())")
}

// SetRepresentation shows obj in one of Representations.
func (e *Executor) SetRepresentation(ctx context.Context, obj, rep string) Result {
	if err := ValidateRepresentation(rep); err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return e.ExecuteCommand(ctx, fmt.Sprintf("show %s, %s", strings.ToLower(strings.TrimSpace(rep)), obj))
}

// ColorObject colors obj.
func (e *Executor) ColorObject(ctx context.Context, obj, color string) Result {
	return e.ExecuteCommand(ctx, fmt.Sprintf("color %s, %s", color, obj))
}

// ZoomObject centers the camera on obj.
func (e *Executor) ZoomObject(ctx context.Context, obj string) Result {
	return e.ExecuteCommand(ctx, fmt.Sprintf("zoom %s", obj))
}

// SaveImage renders the current view to a PNG file.
func (e *Executor) SaveImage(ctx context.Context, filename string, width, height int) Result {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return e.ExecuteCommand(ctx, fmt.Sprintf("png %s, width=%d, height=%d", filename, width, height))
}

// GetSelectionInfo reports atom count, bond count and center of mass of a
// selection. An empty selection means "all".
func (e *Executor) GetSelectionInfo(ctx context.Context, selection string) Result {
	if strings.TrimSpace(selection) == "" {
		selection = "all"
	}
	sel := pyString(selection)
	script := strings.Join([]string{
		"print(\"Number of atoms: %d\" % cmd.count_atoms(" + sel + "))",
		"print(\"Number of bonds: %d\" % len(cmd.get_model(" + sel + ").bond))",
		"print(\"Center of mass: %s\" % (cmd.centerofmass(" + sel + "),))",
	}, "\n")
	return e.run(ctx, "info "+selection, script)
}

// Session returns the commands replayed before each run.
func (e *Executor) Session() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.session...)
}

// ResetSession forgets all replayed commands.
func (e *Executor) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = nil
}

func (e *Executor) remember(command string) {
	if !e.replay {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = append(e.session, command)
	if len(e.session) > maxSessionCommands {
		e.session = e.session[len(e.session)-maxSessionCommands:]
	}
}

// run writes body into a script, runs PyMOL on it and removes the script.
func (e *Executor) run(ctx context.Context, command, body string) Result {
	script, err := e.writeScript(body)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Command: command}
	}
	defer func() {
		if err := os.Remove(script); err != nil && !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Str("script", script).Msg("Failed to remove PyMOL script")
		}
	}()

	res, err := e.runner.Execute(ctx, sandbox.ExecuteRequest{
		Command:    e.path,
		Args:       []string{"-cq", script},
		WorkingDir: e.workDir,
		Timeout:    e.timeout,
	})
	if errors.Is(err, sandbox.ErrExecutionTimeout) {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("Command timed out after %d seconds", int(e.timeout.Seconds())),
			Command: command,
		}
	}
	if err != nil {
		return Result{Success: false, Error: err.Error(), Command: command}
	}
	if res.Error != nil {
		return Result{Success: false, Error: res.Error.Error(), Command: command}
	}

	e.logger.Debug().
		Str("command", command).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("PyMOL command finished")

	if res.ExitCode != 0 {
		return Result{Success: false, Error: string(res.Stderr), Command: command}
	}
	return Result{Success: true, Output: string(res.Stdout), Command: command}
}

func (e *Executor) writeScript(body string) (string, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to name script: %w", err)
	}
	path := filepath.Join(e.workDir, "pymol_"+id+".py")
	if err := os.WriteFile(path, []byte(e.buildScript(body)), 0600); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	return path, nil
}

// buildScript wraps body so that any exception exits non-zero and success
// prints SuccessMarker.
func (e *Executor) buildScript(body string) string {
	var b strings.Builder
	b.WriteString("import sys\nfrom pymol import cmd\ntry:\n")
	if e.replay {
		for _, prior := range e.Session() {
			b.WriteString("    cmd.do(" + pyString(prior) + ")\n")
		}
	}
	for _, line := range strings.Split(body, "\n") {
		b.WriteString("    " + line + "\n")
	}
	b.WriteString("    print(" + pyString(SuccessMarker) + ")\n")
	b.WriteString("except Exception as e:\n")
	b.WriteString("    print(\"ERROR: %s\" % e, file=sys.stderr)\n")
	b.WriteString("    sys.exit(1)\n")
	return b.String()
}

// pyString renders s as a Python string literal. JSON string syntax is a
// subset of Python's.
func pyString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func quotePath(p string) string {
	return "\"" + strings.ReplaceAll(p, "\"", "\\\"") + "\""
}

// replayable reports whether a command changes scene state rather than
// producing output, so replaying it is safe.
func replayable(command string) bool {
	switch commandName(command) {
	case "", "png", "save", "ray", "mpng", "print", "get_names", "count_atoms", "quit", "reinitialize":
		return false
	}
	return true
}

func commandName(command string) string {
	fields := strings.Fields(strings.ReplaceAll(command, ",", " "))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
