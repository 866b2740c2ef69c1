package asyncio

import (
	"fmt"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the narrow logging surface the runtime needs: structured
// diagnostics for the two situations it logs from (a fatal reactor error, a
// recovered task panic). It exists so WithLogger can accept any
// logiface-backed logger without this package depending on logiface's full
// generic Logger[E] type at the API boundary.
type Logger interface {
	Errorf(format string, args ...any)
}

// stumpyLogger adapts a *logiface.Logger[*stumpy.Event] (this module's
// default structured-logging backend) to the Logger interface.
type stumpyLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

func (s stumpyLogger) Errorf(format string, args ...any) {
	s.l.Err().Log(fmt.Sprintf(format, args...))
}

// nopLogger discards everything. Nothing in the package constructs it;
// defaultLogger always returns a stumpyLogger.
type nopLogger struct{}

func (nopLogger) Errorf(string, ...any) {}

// defaultLogger returns the package's default structured logger: a stumpy
// JSON writer on os.Stderr.
func defaultLogger() Logger {
	l := stumpy.L.New(stumpy.L.WithStumpy())
	return stumpyLogger{l: l}
}
