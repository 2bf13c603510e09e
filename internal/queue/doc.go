// Package queue persists acquisition queue items in SQLite and enforces the
// item state machine. Every status write goes through CompareAndSetStatus so
// concurrent processor steps and user actions cannot clobber each other; the
// losing writer observes ErrStaleTransition and re-reads.
package queue
