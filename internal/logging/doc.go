// Package logging provides structured logging with per-module log levels.
//
// Loggers are plain *slog.Logger values tagged with module=<name>:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"ffmpeg":     "warn",
//			"streamgear": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("streamgear").With("session_id", id)
//	logger.Warn("Dropping stream descriptor", "index", 2, "reason", "bad resolution")
//
// Records go to stdout (text or JSON), to the systemd journal when journald is
// reachable (identifier "streamgear", attributes upper-cased into journal
// fields), and always to an in-memory ring buffer. The buffer keeps the last
// 1000 entries and is what the preview API and the tests read:
//
//	warns := logging.GetBuffer().Filter(func(e logging.LogEntry) bool {
//		return e.Level == "warn" && e.Module == "plan"
//	})
//
// Loggers obtained before Initialize keep their identity; Initialize updates
// their level in place through a slog.LevelVar.
//
// Filtering the journal:
//
//	journalctl -t streamgear MODULE=ffmpeg
//	journalctl -t streamgear SESSION_ID=4f1c...
package logging
