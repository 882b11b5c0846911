// Package fanout runs independent calls concurrently and waits for every one of them.
package fanout

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of one call: either Value or Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Settle runs every call in its own goroutine and blocks until all have returned.
// It never short-circuits: a failing call does not cancel the others.
// Results are in the same order as calls. A panicking call yields an error result.
func Settle[T any](ctx context.Context, calls ...func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(i int, call func(context.Context) (T, error)) {
			defer wg.Done()
			results[i] = run(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Pair settles two calls of different result types.
func Pair[A, B any](ctx context.Context, a func(context.Context) (A, error), b func(context.Context) (B, error)) (Result[A], Result[B]) {
	var (
		ra Result[A]
		rb Result[B]
		wg sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ra = run(ctx, a)
	}()
	go func() {
		defer wg.Done()
		rb = run(ctx, b)
	}()
	wg.Wait()
	return ra, rb
}

func run[T any](ctx context.Context, call func(context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("fanout: call panicked: %v", r)}
		}
	}()
	v, err := call(ctx)
	return Result[T]{Value: v, Err: err}
}
