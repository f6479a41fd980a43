package desktop

import "errors"

var (
	ErrWindowNotFound = errors.New("no window found")
	ErrNoActiveWindow = errors.New("no active window found")
	ErrOutOfBounds    = errors.New("position is outside the active window")
	ErrInvalidButton  = errors.New("invalid mouse button")
	ErrCommandFailed  = errors.New("desktop command failed")
	ErrUnexpectedData = errors.New("unexpected command output")
)
