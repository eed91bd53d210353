package process

import (
	"io"
	"time"

	"github.com/smazurov/streamgear/internal/logging"
)

// Option configures a Process.
type Option func(*Process)

// WithInput connects a pipe to the process stdin. Write feeds it and Stop
// closes it to signal end of stream.
func WithInput() Option {
	return func(p *Process) { p.withInput = true }
}

// WithStdout sends raw stdout to w. Stdout lines then no longer reach the
// output handler.
func WithStdout(w io.Writer) Option {
	return func(p *Process) { p.stdout = w }
}

// WithOutputHandler receives every stdout and stderr line.
func WithOutputHandler(h OutputHandler) Option {
	return func(p *Process) { p.outputHandler = h }
}

// WithLogParser logs process output through logger, at the level parser
// extracts from each stderr line.
func WithLogParser(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.outputLogger = logger
		p.logParser = parser
	}
}

// WithGracefulTimeout sets how long Stop waits before killing the group.
func WithGracefulTimeout(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.gracefulTimeout = d
		}
	}
}

// WithKillTimeout sets how long Stop waits after SIGKILL.
func WithKillTimeout(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.killTimeout = d
		}
	}
}

// WithTailSize sets how many stderr lines Tail can return.
func WithTailSize(n int) Option {
	return func(p *Process) { p.tail = NewLineRing(n) }
}
