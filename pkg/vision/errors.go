package vision

import "errors"

var (
	// ErrImageNotFound is returned when the image path does not exist
	ErrImageNotFound = errors.New("image file not found")

	// ErrUnsupportedFormat is returned for files no registered decoder reads
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrUnknownColor is returned for an annotation color that cannot be parsed
	ErrUnknownColor = errors.New("unknown color")
)
