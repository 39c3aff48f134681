package common

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoCandidates = errors.New("no candidates to race")
)

type raceResult[T any] struct {
	val T
	err error
}

// Race runs every fn concurrently, each under its own timeout, and returns
// the first successful result. Results arriving after the winner are dropped.
// When every fn fails the joined errors are returned.
func Race[T any](ctx context.Context, timeout time.Duration, fns ...func(context.Context) (T, error)) (T, error) {
	var zero T
	if len(fns) == 0 {
		return zero, ErrNoCandidates
	}

	ch := make(chan raceResult[T], len(fns))
	for _, fn := range fns {
		go func(fn func(context.Context) (T, error)) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			v, err := fn(callCtx)
			ch <- raceResult[T]{v, err}
		}(fn)
	}

	var errs []error
	for range fns {
		select {
		case r := <-ch:
			if r.err == nil {
				return r.val, nil
			}
			errs = append(errs, r.err)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, errors.Join(errs...)
}

// Retry calls fn up to attempts times, sleeping delay between failures.
// The last error is returned.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
