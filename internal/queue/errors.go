package queue

import "errors"

var (
	// ErrNotFound indicates the requested queue item does not exist.
	ErrNotFound = errors.New("queue item not found")

	// ErrInvalidTransition indicates the requested status edge is not part of
	// the item state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleTransition indicates the item's status changed underneath the
	// caller between read and write. The losing writer must re-read and decide
	// again; the stored state is unchanged by the rejected write.
	ErrStaleTransition = errors.New("stale status transition")
)
