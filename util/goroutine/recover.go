package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize bounds the stack captured for a recovered panic
const StackTraceBufferSize = 4096

// Recover logs a panic raised in the calling goroutine and swallows it.
// Use it as `defer goroutine.Recover("name", logger)`.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		report(name, logger, r)
	}
}

// RecoverWith is Recover plus a callback receiving the panic value, so the caller
// can record a failed outcome for the work that panicked.
func RecoverWith(name string, logger *zap.SugaredLogger, onPanic func(v any)) {
	if r := recover(); r != nil {
		report(name, logger, r)
		if onPanic != nil {
			onPanic(r)
		}
	}
}

// Go runs fn on a new goroutine guarded by Recover.
func Go(name string, logger *zap.SugaredLogger, fn func()) {
	go func() {
		defer Recover(name, logger)
		fn()
	}()
}

func report(name string, logger *zap.SugaredLogger, r any) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)
	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, buf[:n])
		return
	}
	logger.Errorw("Goroutine panic recovered",
		"goroutine", name,
		"panic", r,
		"stack", string(buf[:n]))
}
