package desktop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScreenInfo describes the display and the pointer.
type ScreenInfo struct {
	Width           int    `json:"screen_width"`
	Height          int    `json:"screen_height"`
	CurrentPosition [2]int `json:"current_position"`
}

// WindowMatches is the result of a window search.
type WindowMatches struct {
	Count   int      `json:"windows_found"`
	Windows []Window `json:"windows"`
}

// ActivatedWindow is the window raised by ActivateWindow.
type ActivatedWindow struct {
	Title    string `json:"title"`
	Position [2]int `json:"position"`
	Size     [2]int `json:"size"`
}

// Action describes an input event that was sent.
type Action struct {
	Action string `json:"action"`
}

// Screenshot is a saved capture of the screen.
type Screenshot struct {
	Filename string `json:"filename"`
	Size     [2]int `json:"size"`
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Controller sends input to the desktop and captures it.
type Controller struct {
	x *x11
}

// NewController creates a controller that runs X11 tools through runner.
func NewController(runner Runner, cfg Config) *Controller {
	return &Controller{x: newX11(runner, cfg)}
}

// ScreenInfo returns the display size and pointer position.
func (c *Controller) ScreenInfo(ctx context.Context) (ScreenInfo, error) {
	w, h, err := c.x.geometry(ctx)
	if err != nil {
		return ScreenInfo{}, err
	}
	mx, my, err := c.x.mouse(ctx)
	if err != nil {
		return ScreenInfo{}, err
	}
	return ScreenInfo{Width: w, Height: h, CurrentPosition: [2]int{mx, my}}, nil
}

// FindWindows returns the windows whose title contains pattern, ignoring case.
func (c *Controller) FindWindows(ctx context.Context, pattern string) (WindowMatches, error) {
	matched, err := c.x.find(ctx, pattern)
	if err != nil {
		return WindowMatches{}, err
	}
	return WindowMatches{Count: len(matched), Windows: matched}, nil
}

// ActivateWindow raises the first window whose title contains title.
func (c *Controller) ActivateWindow(ctx context.Context, title string) (ActivatedWindow, error) {
	matched, err := c.x.find(ctx, title)
	if err != nil {
		return ActivatedWindow{}, err
	}
	w := matched[0]
	if err := c.x.activate(ctx, w); err != nil {
		return ActivatedWindow{}, err
	}
	return ActivatedWindow{
		Title:    w.Title,
		Position: [2]int{w.Left, w.Top},
		Size:     [2]int{w.Width, w.Height},
	}, nil
}

// Click clicks button (left, right, middle or double) at (x, y).
func (c *Controller) Click(ctx context.Context, x, y int, button string) (Action, error) {
	if button == "" {
		button = "left"
	}
	args := []string{"mousemove", strconv.Itoa(x), strconv.Itoa(y), "click"}
	switch button {
	case "left":
		args = append(args, "1")
	case "middle":
		args = append(args, "2")
	case "right":
		args = append(args, "3")
	case "double":
		args = append(args, "--repeat", "2", "1")
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidButton, button)
	}
	if _, err := c.x.run(ctx, "xdotool", args...); err != nil {
		return Action{}, err
	}
	return Action{Action: fmt.Sprintf("Clicked %s button at (%d, %d)", button, x, y)}, nil
}

// TypeText types text into the focused window with interval between
// keystrokes. A negative interval uses the configured default.
func (c *Controller) TypeText(ctx context.Context, text string, interval time.Duration) (Action, error) {
	if interval < 0 {
		interval = c.x.typeInterval
	}
	delay := strconv.FormatInt(interval.Milliseconds(), 10)
	if _, err := c.x.run(ctx, "xdotool", "type", "--delay", delay, "--", text); err != nil {
		return Action{}, err
	}
	return Action{Action: "Typed text: " + preview(text, 50)}, nil
}

// PressKey presses a key or a chord such as "ctrl+c".
func (c *Controller) PressKey(ctx context.Context, key string) (Action, error) {
	if _, err := c.x.run(ctx, "xdotool", "key", "--", Keysym(key)); err != nil {
		return Action{}, err
	}
	return Action{Action: "Pressed key: " + key}, nil
}

// Screenshot captures the whole screen. An empty filename saves
// screenshot_<unix time>.png in the screenshot directory.
func (c *Controller) Screenshot(ctx context.Context, filename string) (Screenshot, error) {
	if filename == "" {
		var err error
		filename, err = c.x.screenshotPath(fmt.Sprintf("screenshot_%d.png", c.x.now().Unix()))
		if err != nil {
			return Screenshot{}, err
		}
	}
	if _, err := c.x.run(ctx, "import", "-window", "root", filename); err != nil {
		return Screenshot{}, err
	}

	shot := Screenshot{Filename: filename}
	if w, h, err := c.x.geometry(ctx); err == nil {
		shot.Size = [2]int{w, h}
	} else {
		c.x.logger.Warn().Err(err).Msg("Failed to read display geometry")
	}
	return shot, nil
}

// MousePosition returns the pointer position.
func (c *Controller) MousePosition(ctx context.Context) (Point, error) {
	x, y, err := c.x.mouse(ctx)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

// Drag holds the left button from (x1, y1) to (x2, y2) over duration.
func (c *Controller) Drag(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) (Action, error) {
	if duration < 0 {
		duration = 0
	}
	_, err := c.x.run(ctx, "xdotool",
		"mousemove", strconv.Itoa(x1), strconv.Itoa(y1),
		"mousedown", "1",
		"sleep", strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		"mousemove", strconv.Itoa(x2), strconv.Itoa(y2),
		"mouseup", "1",
	)
	if err != nil {
		return Action{}, err
	}
	return Action{Action: fmt.Sprintf("Dragged from (%d, %d) to (%d, %d)", x1, y1, x2, y2)}, nil
}

var keysyms = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"win":       "super",
	"super":     "super",
	"cmd":       "super",
}

// Keysym converts a key name such as "enter", "f5" or "ctrl+shift+s" into
// the X keysym chord xdotool expects. Unknown names pass through.
func Keysym(key string) string {
	parts := strings.Split(key, "+")
	for i, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if sym, ok := keysyms[name]; ok {
			parts[i] = sym
			continue
		}
		if len(name) >= 2 && name[0] == 'f' {
			if n, err := strconv.Atoi(name[1:]); err == nil && n >= 1 && n <= 24 {
				parts[i] = "F" + name[1:]
				continue
			}
		}
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, "+")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
