package domain

import "errors"

var (
	// ErrValidation marks a request missing a required field
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable wraps failures talking to the session store
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrUpstreamUnavailable wraps failures talking to the AI service or the upload directory
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrSessionNotFound is returned by read-only lookups of an absent session
	ErrSessionNotFound = errors.New("session not found")
)
