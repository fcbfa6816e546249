// Package parallel holds the bounded goroutine fan-out used for per-sample
// batch assembly.
package parallel

import "sync"

// ForEach calls body for every i in [0, length) using at most limit
// goroutines at a time and returns the error of the lowest index that failed.
func ForEach(length, limit int, body func(i int) error) error {
	if length <= 0 {
		return nil
	}
	if limit <= 1 || length == 1 {
		for i := range length {
			if err := body(i); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, length)
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)
	for i := range length {
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = body(i)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
