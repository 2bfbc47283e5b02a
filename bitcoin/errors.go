package bitcoin

import "errors"

var (
	// ErrInvalidIdentifier marks a malformed txid or address, never retried.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNotFound marks remote data that is absent after the backend's retries.
	ErrNotFound          = errors.New("not found")
	ErrMissingIdentifier = errors.New("input data does not contain transaction id")
	ErrNoAddressIndex    = errors.New("no address index configured")
)
