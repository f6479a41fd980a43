package desktop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInspector(t *testing.T) (*Inspector, *fakeRunner, string) {
	t.Helper()
	dir := t.TempDir()
	runner := &fakeRunner{}
	return NewInspector(runner, testConfig(dir)), runner, dir
}

func TestInspector_WindowHierarchy_Active(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", xwininfoOutput)

	details, err := i.WindowHierarchy(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "PyMOL Viewer 3.0", details.Title)
	assert.True(t, details.Active)
	assert.Len(t, details.Elements, 5)
	assert.Empty(t, details.Note)
}

func TestInspector_WindowHierarchy_ByTitleWithoutElements(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.fail("xwininfo -tree -id 0x04000001", 1, "xwininfo: error: No such window")

	details, err := i.WindowHierarchy(context.Background(), "terminal")
	require.NoError(t, err)

	assert.Equal(t, "Terminal - bash", details.Title)
	assert.Empty(t, details.Elements)
	assert.Equal(t, "Detailed accessibility information not available", details.Note)
}

func TestInspector_WindowHierarchy_NoActiveWindow(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	runner.reply("wmctrl -lG", wmctrlOutput)
	runner.fail("xdotool getactivewindow", 1, "")

	_, err := i.WindowHierarchy(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoActiveWindow)
}

func TestInspector_WindowHierarchy_NotFound(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)

	_, err := i.WindowHierarchy(context.Background(), "coot")
	assert.ErrorIs(t, err, ErrWindowNotFound)
}

func TestInspector_ClickableElements(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", xwininfoOutput)

	out, err := i.ClickableElements(context.Background(), "")
	require.NoError(t, err)

	require.Equal(t, 4, out.Total)
	var labels []string
	for _, e := range out.Elements {
		assert.Equal(t, "click", e.Action)
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"File", "Apply", "Sticks", "Cartoon"}, labels)
}

func TestInspector_ClickableElements_None(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", "")

	out, err := i.ClickableElements(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Total)
	assert.NotNil(t, out.Elements)
}

func TestInspector_ElementAt(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", xwininfoOutput)

	info, err := i.ElementAt(context.Background(), 120, 60)
	require.NoError(t, err)

	assert.Equal(t, [2]int{120, 60}, info.Position)
	assert.Equal(t, "PyMOL Viewer 3.0", info.Window)
	assert.Equal(t, [2]int{20, 10}, info.RelativePosition)
	require.NotNil(t, info.Element)
	assert.Equal(t, "File", info.Element.Label)
}

func TestInspector_ElementAt_Nested(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", xwininfoOutput)

	info, err := i.ElementAt(context.Background(), 115, 165)
	require.NoError(t, err)
	require.NotNil(t, info.Element)
	assert.Equal(t, "Cartoon", info.Element.Label)
}

func TestInspector_ElementAt_OutOfBounds(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)

	_, err := i.ElementAt(context.Background(), 50, 60)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Contains(t, err.Error(), "(50, 60)")
}

func TestInspector_CaptureWindowState(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)
	runner.reply("xwininfo -tree -id 0x03a00003", xwininfoOutput)
	runner.reply("xdotool getdisplaygeometry", "2560 1440\n")

	state, err := i.CaptureWindowState(context.Background(), "PyMOL")
	require.NoError(t, err)

	assert.Equal(t, "PyMOL Viewer 3.0", state.Title)
	assert.InDelta(t, 1700000000.5, state.CaptureTimestamp, 1e-3)
	assert.Equal(t, [2]int{2560, 1440}, state.ScreenResolution)
	assert.Len(t, state.Elements, 5)
}

func TestInspector_ListWindows(t *testing.T) {
	i, runner, _ := newTestInspector(t)
	withDesktop(runner)

	list, err := i.ListWindows(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, list.Total)
	assert.Equal(t, "Desktop", list.Windows[0].Title)
	assert.Equal(t, "PyMOL Viewer 3.0", list.Windows[1].Title)
	assert.Equal(t, "Terminal - bash", list.Windows[2].Title)
}

func TestInspector_WindowScreenshot(t *testing.T) {
	i, runner, dir := newTestInspector(t)
	withDesktop(runner)
	want := filepath.Join(dir, "window_screenshot_1700000000.png")
	runner.reply("wmctrl -i -a 0x03a00003", "")
	runner.reply("import -window 0x03a00003 "+want, "")

	capture, err := i.WindowScreenshot(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, WindowCapture{
		Filename:    want,
		WindowTitle: "PyMOL Viewer 3.0",
		Size:        [2]int{800, 600},
	}, capture)
	runner.AssertExpectations(t)
}
