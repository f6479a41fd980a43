package desktop

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/harun/pymolagent/pkg/sandbox"
)

const wmctrlOutput = `0x01e00003  0 0    0    1920 1080 workstation Desktop
0x03a00003  0 100  50   800  600  workstation PyMOL Viewer 3.0
0x03c00007 -1 0    0    1920 24   workstation 
0x04000001  0 200  120  640  480  workstation Terminal - bash
`

// 0x03a00003
const pymolWindowID = "60817411"

const xwininfoOutput = `
xwininfo: Window id: 0x3a00003 "PyMOL Viewer 3.0"

  Root window id: 0x1e1 (the root window) (has no name)
  Parent window id: 0x1e1 (the root window) (has no name)
     4 children:
     0x3a00004 "File": ("pymol" "MenuButton")  50x25+0+0  +100+50
     0x3a00005 "Apply": ("pymol" "Button")  60x25+60+0  +160+50
     0x3a00006 "Sticks": ("pymol" "Radiobutton")  60x20+0+40  +100+90
     0x3a00007 (has no name): ()  800x500+0+100  +100+150
        1 child:
        0x3a00008 "Cartoon": ("pymol" "Checkbutton")  80x20+10+10  +110+160
`

type fakeRunner struct {
	mock.Mock

	mu       sync.Mutex
	requests []sandbox.ExecuteRequest
}

func (f *fakeRunner) Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecuteResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	args := f.Called(commandLine(req))
	return args.Get(0).(sandbox.ExecuteResult), args.Error(1)
}

func (f *fakeRunner) reply(line, stdout string) {
	f.On("Execute", line).Return(sandbox.ExecuteResult{Stdout: []byte(stdout)}, nil)
}

func (f *fakeRunner) fail(line string, code int, stderr string) {
	f.On("Execute", line).Return(sandbox.ExecuteResult{ExitCode: code, Stderr: []byte(stderr)}, nil)
}

func commandLine(req sandbox.ExecuteRequest) string {
	return strings.Join(append([]string{req.Command}, req.Args...), " ")
}

// withDesktop scripts the window list with PyMOL focused.
func withDesktop(f *fakeRunner) {
	f.reply("wmctrl -lG", wmctrlOutput)
	f.reply("xdotool getactivewindow", pymolWindowID+"\n")
}

func testConfig(dir string) Config {
	return Config{
		Display:       ":99",
		TypeInterval:  100 * time.Millisecond,
		ScreenshotDir: dir,
		Timeout:       5 * time.Second,
		Logger:        zerolog.Nop(),
		Now: func() time.Time {
			return time.Unix(1700000000, 500000000)
		},
	}
}
