package capability

import "errors"

var (
	// ErrUnknownCapability is returned for a name outside the catalog
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrInvalidArguments is returned when call arguments fail validation
	ErrInvalidArguments = errors.New("invalid arguments")
)
