// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine under the given name. If fn panics, the
// panic is recovered and logged with the name and a stack trace rather than
// crashing the process. Use it for all fire-and-forget goroutines (async
// bookkeeping, request logging) where an unrecovered panic would silently
// kill the goroutine forever.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"name", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
