// Package service exposes the queue operations shared by the HTTP surface,
// the CLI, and the background processor: grabbing releases, pausing,
// resuming, removing, retrying, and reporting statistics.
package service
