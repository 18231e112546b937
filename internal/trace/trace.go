// Package trace provides the structured, non-fatal diagnostics the
// rewrite engine emits (MissingObject warnings, SignatureStripped
// notices, ...). It never aborts a rewrite and never calls os.Exit;
// library code always returns errors to its caller.
package trace

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

func location(skip int) (string, int) {
	pc, _, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", line
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?", line
	}
	return fn.Name(), line
}

// Warn logs a warning that the caller has decided is not fatal to the
// current rewrite (a skipped gitlink, a dropped tag signature, a
// mismatched tag name). It never returns an error.
func Warn(format string, a ...any) {
	fn, line := location(2)
	logrus.WithField("at", fmt.Sprintf("%s:%d", fn, line)).Warn(fmt.Sprintf(format, a...))
}

// Infof logs rewrite progress information (commit counts, cache
// statistics) at info level.
func Infof(format string, a ...any) {
	logrus.Info(fmt.Sprintf(format, a...))
}
