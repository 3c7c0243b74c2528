package ironbase

import "github.com/rs/zerolog"

// componentLogger returns a child logger tagging every event with the
// subsystem that emitted it, the same component-tagging shape used
// throughout the wider engine's logging package, adapted here for an
// embedded library that defaults to silence rather than a global logger.
func componentLogger(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
