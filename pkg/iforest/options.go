package iforest

import "runtime"

// Option configures a Forest.
type Option func(*Forest)

// WithSeed makes tree construction reproducible. Tree i always draws from
// the stream derived from (seed, i), regardless of worker scheduling.
func WithSeed(seed uint64) Option {
	return func(f *Forest) {
		f.seed = seed
		f.seeded = true
	}
}

// WithWorkers sets the size of the worker pool used by Fit and scoring.
// Values below 1 fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *Forest) {
		f.workers = n
	}
}

// WithObserver attaches a diagnostics observer.
func WithObserver(o Observer) Option {
	return func(f *Forest) {
		if o != nil {
			f.observer = o
		}
	}
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
