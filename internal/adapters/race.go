package adapters

import "context"

type raced[T any] struct {
	index int
	value T
}

// firstOf runs every branch concurrently and returns the index and result of the
// first one to finish. The context passed to the branches is cancelled before
// firstOf returns, so the losers must watch it and return promptly. Losers are
// not waited for.
func firstOf[T any](ctx context.Context, branches ...func(context.Context) T) (int, T) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raced[T], len(branches))
	for i, branch := range branches {
		go func() {
			results <- raced[T]{index: i, value: branch(ctx)}
		}()
	}

	first := <-results
	return first.index, first.value
}
