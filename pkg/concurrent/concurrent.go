package concurrent

import "sync"

// Batch splits in into at most workers contiguous chunks and runs action on
// each chunk in its own goroutine. It returns once every chunk is done.
// With workers <= 1 or a single element it runs inline.
func Batch[T any](in []T, workers int, action func([]T)) {
	if len(in) == 0 {
		return
	}
	if workers <= 1 || len(in) == 1 {
		action(in)
		return
	}
	size := (len(in) + workers - 1) / workers
	var wg sync.WaitGroup
	for idx := 0; idx < len(in); idx += size {
		end := min(idx+size, len(in))
		wg.Add(1)
		go func(chunk []T) {
			defer wg.Done()
			action(chunk)
		}(in[idx:end])
	}
	wg.Wait()
}
