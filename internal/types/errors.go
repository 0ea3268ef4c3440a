package types

import "errors"

var (
	// ErrAuthFailure means the login handshake signals did not all pass
	ErrAuthFailure = errors.New("remote authentication failed")

	// ErrNotFound means no plausible product survived validation
	ErrNotFound = errors.New("product not found on remote site")

	// ErrParseFailure means the page matched no known selector or pattern
	ErrParseFailure = errors.New("remote page structure not recognized")

	// ErrPermissionDenied is returned by catalog writes rejected for missing scopes
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUpdateFailure means every inventory write path failed
	ErrUpdateFailure = errors.New("inventory update failed")
)
