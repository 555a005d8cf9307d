package dedupe

import "time"

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode with FIFO eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// AdmitterOption applies a configuration option to the Admitter.
type AdmitterOption func(*Admitter)

// WithRecentKeys puts a recent-key filter in front of the store. Keys found
// there are answered with a point lookup instead of an insert attempt.
func WithRecentKeys(d Deduper) AdmitterOption {
	return func(a *Admitter) {
		a.recent = d
	}
}

// WithClock overrides the source of received_at.
func WithClock(now func() time.Time) AdmitterOption {
	return func(a *Admitter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides how new event ids are minted.
func WithIDGenerator(newID func() string) AdmitterOption {
	return func(a *Admitter) {
		if newID != nil {
			a.newID = newID
		}
	}
}
