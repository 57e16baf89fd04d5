package sim

import (
	"context"
	"sync"
)

// Batch runs independent setups on at most workers goroutines. Results keep
// the order of setups. The first failure cancels the runs still in flight
// and stops dispatch; that failure is returned, not the cancellations it
// causes.
func Batch(ctx context.Context, runner Runner, setups []Setup, workers int) ([]*Output, error) {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*Output, len(setups))

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				out, err := runner.Run(ctx, setups[idx])
				if err != nil {
					fail(err)
					continue
				}
				results[idx] = out
			}
		}()
	}

dispatch:
	for i := range setups {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// Only the parent can have canceled ctx when no run failed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
