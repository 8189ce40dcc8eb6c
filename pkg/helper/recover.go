package helper

import (
	"runtime/debug"

	"github.com/CloudNativeWorks/sak-client/pkg/logger"
)

// RecoverPanic logs a recovered panic with its stack so one misbehaving
// goroutine does not take the whole client down.
// Usage: defer helper.RecoverPanic(log, "timed-send")
func RecoverPanic(log *logger.Logger, name string) {
	if r := recover(); r != nil {
		log.WithFields(logger.Fields{
			"goroutine": name,
			"panic":     r,
		}).Errorf("PANIC recovered\nStack: %s", debug.Stack())
	}
}

// Go runs fn in a goroutine guarded by RecoverPanic
func Go(log *logger.Logger, name string, fn func()) {
	go func() {
		defer RecoverPanic(log, name)
		fn()
	}()
}
