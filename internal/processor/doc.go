// Package processor owns the daemon's background loops: dispatching queued
// items to the download client, syncing remote transfer progress into the
// store, and compacting aged-out terminal rows.
package processor
