package queue

import (
	"context"
	"fmt"
)

// Retry calls fn up to tries times and returns the last error once they are exhausted.
func Retry[T any](ctx context.Context, tries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("max tries (%d) reached: %w", tries, lastErr)
}
