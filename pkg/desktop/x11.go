package desktop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/pymolagent/pkg/sandbox"
)

const DefaultTimeout = 10 * time.Second

// Runner executes one process. sandbox.Sandbox satisfies it.
type Runner interface {
	Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error)
}

// Config configures a Controller or Inspector.
type Config struct {
	// Display is forwarded as DISPLAY. Empty leaves the runner's value alone.
	Display string

	// TypeInterval is the keystroke delay used when TypeText gets a negative one.
	TypeInterval time.Duration

	// ScreenshotDir receives screenshots saved without an explicit path.
	ScreenshotDir string

	// Timeout bounds each command. Defaults to 10s.
	Timeout time.Duration

	Logger zerolog.Logger

	// Now is the clock used for screenshot names and capture timestamps.
	Now func() time.Time
}

type x11 struct {
	runner        Runner
	display       string
	typeInterval  time.Duration
	screenshotDir string
	timeout       time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func newX11(runner Runner, cfg Config) *x11 {
	x := &x11{
		runner:        runner,
		display:       cfg.Display,
		typeInterval:  cfg.TypeInterval,
		screenshotDir: cfg.ScreenshotDir,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if x.timeout <= 0 {
		x.timeout = DefaultTimeout
	}
	if x.typeInterval < 0 {
		x.typeInterval = 0
	}
	if x.now == nil {
		x.now = time.Now
	}
	return x
}

// run executes name with args and returns stdout.
func (x *x11) run(ctx context.Context, name string, args ...string) (string, error) {
	req := sandbox.ExecuteRequest{
		Command: name,
		Args:    args,
		Timeout: x.timeout,
	}
	if x.display != "" {
		req.Env = map[string]string{"DISPLAY": x.display}
	}

	res, err := x.runner.Execute(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if res.Error != nil {
		return "", fmt.Errorf("%s: %w", name, res.Error)
	}

	x.logger.Debug().
		Str("command", name).
		Strs("args", args).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("Desktop command finished")

	if res.ExitCode != 0 {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, name, msg)
	}
	return string(res.Stdout), nil
}

func (x *x11) windows(ctx context.Context) ([]Window, error) {
	out, err := x.run(ctx, "wmctrl", "-lG")
	if err != nil {
		return nil, err
	}
	windows, err := ParseWindowList(out)
	if err != nil {
		return nil, err
	}

	// No focused window is not an error for listing.
	if active, err := x.activeWindowID(ctx); err == nil {
		for i := range windows {
			windows[i].Active = sameWindow(windows[i].ID, active)
		}
	}
	return windows, nil
}

func (x *x11) activeWindowID(ctx context.Context) (string, error) {
	out, err := x.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoActiveWindow, err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", ErrNoActiveWindow
	}
	return id, nil
}

// find returns windows whose title contains pattern, ignoring case.
func (x *x11) find(ctx context.Context, pattern string) ([]Window, error) {
	all, err := x.windows(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(pattern)
	var matched []Window
	for _, w := range all {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			matched = append(matched, w)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w matching %q", ErrWindowNotFound, pattern)
	}
	return matched, nil
}

// resolve returns the first window matching title, or the active window
// when title is empty.
func (x *x11) resolve(ctx context.Context, title string) (Window, error) {
	if title != "" {
		matched, err := x.find(ctx, title)
		if err != nil {
			return Window{}, err
		}
		return matched[0], nil
	}

	all, err := x.windows(ctx)
	if err != nil {
		return Window{}, err
	}
	for _, w := range all {
		if w.Active {
			return w, nil
		}
	}
	return Window{}, ErrNoActiveWindow
}

func (x *x11) activate(ctx context.Context, w Window) error {
	_, err := x.run(ctx, "wmctrl", "-i", "-a", w.ID)
	return err
}

func (x *x11) geometry(ctx context.Context) (int, int, error) {
	out, err := x.run(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: display geometry %q", ErrUnexpectedData, strings.TrimSpace(out))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil {
		return 0, 0, fmt.Errorf("%w: display geometry %q", ErrUnexpectedData, strings.TrimSpace(out))
	}
	return w, h, nil
}

func (x *x11) mouse(ctx context.Context) (int, int, error) {
	out, err := x.run(ctx, "xdotool", "getmouselocation", "--shell")
	if err != nil {
		return 0, 0, err
	}
	return ParseMouseLocation(out)
}

// screenshotPath returns name inside the screenshot directory, creating it.
func (x *x11) screenshotPath(name string) (string, error) {
	if x.screenshotDir == "" {
		return name, nil
	}
	if err := os.MkdirAll(x.screenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return filepath.Join(x.screenshotDir, name), nil
}

func sameWindow(a, b string) bool {
	na, errA := strconv.ParseUint(a, 0, 64)
	nb, errB := strconv.ParseUint(b, 0, 64)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}
