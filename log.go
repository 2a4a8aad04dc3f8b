package nomad

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the handful of fields every core
// component tags its lines with (iteration counter, thread origin), mirroring
// how the rest of the corpus wires structured logging through a thin
// application-specific wrapper rather than calling zerolog directly at each
// call site.
type Logger struct {
	zerolog.Logger
}

// NewLogger builds a console-friendly logger when w is a terminal-like
// writer (os.Stderr by default), and a plain JSON logger otherwise — the
// same split the corpus's zerolog bridges make between interactive and
// production output.
func NewLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	if f, ok := w.(*os.File); ok && (f == os.Stderr || f == os.Stdout) {
		w = zerolog.ConsoleWriter{Out: f}
	}
	return Logger{Logger: zerolog.New(w).With().Timestamp().Logger()}
}

// WithThread returns a derived logger tagging every line with a
// ThreadOrigin, for COOP/PSD/SSD runs where several MegaIterations log
// concurrently.
func (l Logger) WithThread(threadOrigin string) Logger {
	return Logger{Logger: l.Logger.With().Str("thread", threadOrigin).Logger()}
}

// WithIteration returns a derived logger tagging every line with the
// current mega-iteration counter k.
func (l Logger) WithIteration(k int) Logger {
	return Logger{Logger: l.Logger.With().Int("iteration", k).Logger()}
}

// NopLogger returns a Logger that discards everything, used as the default
// for components that accept an optional Logger (spec §7: evaluation
// failures are non-fatal and must not require a caller to wire logging
// just to avoid a nil-writer panic).
func NopLogger() Logger { return Logger{Logger: zerolog.Nop()} }
