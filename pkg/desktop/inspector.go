package desktop

import (
	"context"
	"fmt"
	"time"
)

const noElementsNote = "Detailed accessibility information not available"

// WindowDetails is a window with the child regions found inside it.
type WindowDetails struct {
	Window
	Elements []Element `json:"accessibility_elements,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// ClickableElement is an element that accepts a click.
type ClickableElement struct {
	Element
	Action string `json:"action"`
}

// ClickableElements lists the clickable regions of a window.
type ClickableElements struct {
	Elements []ClickableElement `json:"clickable_elements"`
	Total    int                `json:"total_found"`
}

// ElementInfo describes the point under a screen coordinate.
type ElementInfo struct {
	Position         [2]int   `json:"position"`
	Window           string   `json:"window"`
	RelativePosition [2]int   `json:"relative_position"`
	Element          *Element `json:"element,omitempty"`
}

// WindowState is a timestamped snapshot of a window.
type WindowState struct {
	WindowDetails
	CaptureTimestamp float64 `json:"capture_timestamp"`
	ScreenResolution [2]int  `json:"screen_resolution"`
}

// WindowList is every titled window on the display.
type WindowList struct {
	Windows []Window `json:"windows"`
	Total   int      `json:"total_windows"`
}

// WindowCapture is a saved screenshot of one window.
type WindowCapture struct {
	Filename    string `json:"filename"`
	WindowTitle string `json:"window_title"`
	Size        [2]int `json:"size"`
}

// Inspector reports window geometry and structure.
type Inspector struct {
	x *x11
}

// NewInspector creates an inspector that runs X11 tools through runner.
func NewInspector(runner Runner, cfg Config) *Inspector {
	return &Inspector{x: newX11(runner, cfg)}
}

// WindowHierarchy describes the first window whose title contains title, or
// the active window when title is empty.
func (i *Inspector) WindowHierarchy(ctx context.Context, title string) (WindowDetails, error) {
	w, err := i.x.resolve(ctx, title)
	if err != nil {
		return WindowDetails{}, err
	}
	return i.details(ctx, w), nil
}

// ClickableElements returns the button, menu, link, checkbox and radio
// regions of a window.
func (i *Inspector) ClickableElements(ctx context.Context, title string) (ClickableElements, error) {
	details, err := i.WindowHierarchy(ctx, title)
	if err != nil {
		return ClickableElements{}, err
	}
	out := ClickableElements{Elements: []ClickableElement{}}
	for _, e := range details.Elements {
		if Clickable(e.Type) {
			out.Elements = append(out.Elements, ClickableElement{Element: e, Action: "click"})
		}
	}
	out.Total = len(out.Elements)
	return out, nil
}

// ElementAt reports the active-window position of (x, y), and the innermost
// region under it when one is known.
func (i *Inspector) ElementAt(ctx context.Context, x, y int) (ElementInfo, error) {
	w, err := i.x.resolve(ctx, "")
	if err != nil {
		return ElementInfo{}, err
	}
	if !w.Contains(x, y) {
		return ElementInfo{}, fmt.Errorf("%w: (%d, %d) is outside %q", ErrOutOfBounds, x, y, w.Title)
	}

	info := ElementInfo{
		Position:         [2]int{x, y},
		Window:           w.Title,
		RelativePosition: [2]int{x - w.Left, y - w.Top},
	}
	// Later elements are deeper in the tree.
	for _, e := range i.details(ctx, w).Elements {
		if x >= e.Position[0] && x < e.Position[0]+e.Size[0] &&
			y >= e.Position[1] && y < e.Position[1]+e.Size[1] {
			e := e
			info.Element = &e
		}
	}
	return info, nil
}

// CaptureWindowState snapshots a window together with the screen size.
func (i *Inspector) CaptureWindowState(ctx context.Context, title string) (WindowState, error) {
	details, err := i.WindowHierarchy(ctx, title)
	if err != nil {
		return WindowState{}, err
	}
	state := WindowState{
		WindowDetails:    details,
		CaptureTimestamp: float64(i.x.now().UnixNano()) / float64(time.Second),
	}
	if w, h, err := i.x.geometry(ctx); err == nil {
		state.ScreenResolution = [2]int{w, h}
	} else {
		i.x.logger.Warn().Err(err).Msg("Failed to read display geometry")
	}
	return state, nil
}

// ListWindows returns every window with a non-blank title.
func (i *Inspector) ListWindows(ctx context.Context) (WindowList, error) {
	all, err := i.x.windows(ctx)
	if err != nil {
		return WindowList{}, err
	}
	out := WindowList{Windows: []Window{}}
	for _, w := range all {
		if w.Visible && w.Title != "" {
			out.Windows = append(out.Windows, w)
		}
	}
	out.Total = len(out.Windows)
	return out, nil
}

// WindowScreenshot raises a window and saves window_screenshot_<unix time>.png.
func (i *Inspector) WindowScreenshot(ctx context.Context, title string) (WindowCapture, error) {
	w, err := i.x.resolve(ctx, title)
	if err != nil {
		return WindowCapture{}, err
	}
	if err := i.x.activate(ctx, w); err != nil {
		return WindowCapture{}, err
	}
	filename, err := i.x.screenshotPath(fmt.Sprintf("window_screenshot_%d.png", i.x.now().Unix()))
	if err != nil {
		return WindowCapture{}, err
	}
	if _, err := i.x.run(ctx, "import", "-window", w.ID, filename); err != nil {
		return WindowCapture{}, err
	}
	return WindowCapture{
		Filename:    filename,
		WindowTitle: w.Title,
		Size:        [2]int{w.Width, w.Height},
	}, nil
}

func (i *Inspector) details(ctx context.Context, w Window) WindowDetails {
	details := WindowDetails{Window: w}
	out, err := i.x.run(ctx, "xwininfo", "-tree", "-id", w.ID)
	if err != nil {
		i.x.logger.Warn().Err(err).Str("window", w.ID).Msg("Failed to read window tree")
	} else {
		details.Elements = ParseWindowTree(out)
	}
	if len(details.Elements) == 0 {
		details.Note = noElementsNote
	}
	return details
}
