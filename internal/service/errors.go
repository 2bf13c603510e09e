package service

import "errors"

var (
	// ErrInvalidCandidate rejects grabs with no usable download URL.
	ErrInvalidCandidate = errors.New("candidate has no download url")

	// ErrNoAcceptableRelease means the search ran but scoring rejected every
	// candidate; the caller falls back to manual selection.
	ErrNoAcceptableRelease = errors.New("no acceptable release found")

	// ErrNotRetryable means the item is not in a state retry applies to.
	ErrNotRetryable = errors.New("item is not in a failed state")
)
