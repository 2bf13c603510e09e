// Package logging builds the shared slog logger and the attribute helpers
// used across the daemon. All components receive a *slog.Logger from the
// caller; nothing in this repository logs through a package-level logger.
package logging
