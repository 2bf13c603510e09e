// Package daemon composes the queue store, processor, event bus, and
// diagnostic HTTP surface into the long-running fetcharrd process, and
// enforces single-instance execution through a file lock.
package daemon
