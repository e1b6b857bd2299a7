// Package groutine starts goroutines that carry a name, both as a pprof label
// (visible in goroutine profiles) and in their context.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go runs fn on a new goroutine labelled name. A nil parent means
// context.Background().
//
//	groutine.Go(ctx, "bridge-host-to-node", func(ctx context.Context) {
//	    // work
//	})
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	go Do(parent, name, fn)
}

// Do runs fn on the calling goroutine with the name label applied for the
// duration of the call.
func Do(parent context.Context, name string, fn func(ctx context.Context)) {
	pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Named adapts an error-returning worker to errgroup.Group.Go while keeping
// the name label.
func Named(ctx context.Context, name string, fn func(ctx context.Context) error) func() error {
	return func() error {
		var err error
		Do(ctx, name, func(ctx context.Context) {
			err = fn(ctx)
		})
		return err
	}
}

// GetName returns the name attached by Go, Do or Named, or "".
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
