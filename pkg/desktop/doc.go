// Package desktop drives an X11 desktop through command-line tools.
//
// Controller moves the mouse, types, presses keys and takes screenshots with
// xdotool, wmctrl and ImageMagick import. Inspector reports window geometry
// and the child regions xwininfo exposes for a window. Every command runs
// through a Runner, normally a sandbox.Sandbox, with DISPLAY forwarded.
package desktop
