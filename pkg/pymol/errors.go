package pymol

import "errors"

var (
	// ErrInvalidRepresentation is returned for a representation PyMOL cannot show
	ErrInvalidRepresentation = errors.New("invalid representation")

	// ErrFileNotFound is returned when a structure file does not exist
	ErrFileNotFound = errors.New("file not found")
)
