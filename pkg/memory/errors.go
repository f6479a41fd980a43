package memory

import "errors"

var (
	// ErrStoreCorrupt is returned by a Store when persisted records cannot be
	// decoded. The whole load is abandoned.
	ErrStoreCorrupt = errors.New("memory store corrupt")

	// ErrUnknownBackend is returned by OpenStore for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown memory backend")
)
