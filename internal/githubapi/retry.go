package githubapi

import "time"

// WithRetry runs fn up to attempts times, sleeping delay between tries.
// Returns nil on the first success, otherwise the last error.
func WithRetry(attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
