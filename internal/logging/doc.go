// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout when it is connected, to the systemd journal when
// journald is available, and to an in-memory history served by the API.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"process": "debug",
//			"pool":    "warn",
//		},
//	})
//
// Get a logger for a module and add context:
//
//	logger := logging.GetLogger("process").With("process_id", id)
//	logger.Info("Process started", "pid", pid)
//
// Levels can be changed at runtime with SetLevels; loggers already handed out
// follow the change.
//
// Journal entries carry SYSLOG_IDENTIFIER=procpool and one upper-case field
// per attribute:
//
//	journalctl -t procpool MODULE=pool
//	journalctl -t procpool PROCESS_ID=<id> -p err
package logging
