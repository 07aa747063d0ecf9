package httpapi

import (
	"context"
	"time"
)

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// callContext joins the base and request contexts and applies the optional
// per-request timeout.
func callContext(base, req context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	joined, cancelJoin := joinContexts(base, req)
	if timeout <= 0 {
		return joined, cancelJoin
	}
	ctx, cancelTimeout := context.WithTimeout(joined, timeout)
	return ctx, func() {
		cancelTimeout()
		cancelJoin()
	}
}
