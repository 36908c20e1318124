package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clubdues/clubdues/pkg/observability"
)

// SafeGo executes fn in a goroutine with a timeout, panic recovery and error logging.
// Use it instead of a bare go statement for work that outlives the caller, such as
// archiving an export after the response was written. The returned channel is closed
// when fn has finished.
//
//	async.SafeGo(context.WithoutCancel(r.Context()), logger, 30*time.Second, "archive export",
//		func(ctx context.Context) error {
//			return archiver.Put(ctx, key, body)
//		})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()

	return done
}

// Batch runs fn for every item on at most workers goroutines and waits for all of them.
// errs[i] holds the outcome of items[i]; a panic in fn is reported as that item's error.
// Items not yet started when ctx is cancelled fail with the context error.
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}
	errs := make([]error, len(items))

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers && w < len(items); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				errs[i] = runOne(ctx, timeout, items[i], fn)
			}
		}()
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return errs
}

func runOne[T any](ctx context.Context, timeout time.Duration, item T, fn func(context.Context, T) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx, item)
}
