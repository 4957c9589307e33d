// Package logging provides structured logging with per-module log levels.
//
// Loggers are plain *slog.Logger values tagged with a "module" attribute.
// Output goes to stdout and, when journald is reachable, to the systemd
// journal under the identifier "lednode".
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"transport": "debug",
//			"api":       "warn",
//		},
//	})
//
// and fetch module loggers anywhere:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Warn("Could not connect to AP, retrying", "attempt", n, "error", err)
//
// Calling Initialize again adjusts the levels of loggers already handed out;
// the config watcher uses this to apply [logging] edits without a restart.
//
// Journal entries can be filtered by module:
//
//	journalctl -t lednode MODULE=loop
package logging
