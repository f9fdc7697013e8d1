// Package chflow wraps channel receives so they give up when a context is
// done.
package chflow

import "context"

// Receive blocks until a value arrives on ch or ctx is done.
// ok is false when ctx finished first or ch was closed.
func Receive[T any](ctx context.Context, ch <-chan T) (value T, ok bool) {
	select {
	case <-ctx.Done():
		return value, false
	case value, ok = <-ch:
		return value, ok
	}
}
