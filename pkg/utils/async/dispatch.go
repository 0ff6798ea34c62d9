package async

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// Run executes handler in the calling goroutine and converts a panic into
// a fatal error, so a bug in one worker is reported instead of crashing
// the whole run.
//
// Behavior:
//   - Returns the handler's error unchanged
//   - Recovers from panics, logs them with the stack and returns an error
//     tagged types.ErrTagFatal
func Run(ctx context.Context, handler func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger := ctxlog.From(ctx)
			logger.Error("panic in worker",
				"recover", r,
				"stack", string(stack))
			err = goerr.New(fmt.Sprintf("panic: %v", r), goerr.T(types.ErrTagFatal))
		}
	}()

	return handler(ctx)
}

// Go runs handler through Run in a new goroutine and delivers the result on
// the returned channel. The channel is buffered and closed after the single send.
func Go(ctx context.Context, handler func(ctx context.Context) error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- Run(ctx, handler)
	}()
	return ch
}
