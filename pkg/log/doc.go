/*
Package log provides structured logging for padbridge using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("collector started")
	log.Error("failed to open device")

Component loggers:

	engineLog := log.WithComponent("mapping")
	engineLog.Info().Str("engine_id", id).Msg("engine activated")

Structured fields:

	log.Logger.Warn().
		Str("handler", "broker").
		Int("attempt", attempt).
		Msg("reconnect scheduled")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields (component, engine_id, handler)
  - Automatically includes context in all logs

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across the codebase
*/
package log
