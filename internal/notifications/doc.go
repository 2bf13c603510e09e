// Package notifications delivers user-facing push notifications through
// ntfy. An unconfigured topic degrades to a noop service so callers never
// branch on whether notifications are enabled.
package notifications
