package projection

import "time"

// withRetry re-runs an idempotent read up to attempts times with a fixed
// backoff. Only refresh paths use it; writes are never retried here to
// avoid duplicate sends.
func withRetry[T any](attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
		}
		var result T
		if result, err = fn(); err == nil {
			return result, nil
		}
	}
	return zero, err
}
