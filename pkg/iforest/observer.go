package iforest

import "time"

// FitInfo describes one call to Fit.
type FitInfo struct {
	Rows        int
	Cols        int
	SampleSize  int
	Trees       int
	HeightLimit int
}

// Observer receives diagnostics from a Forest. Implementations must be safe
// for concurrent use and must not call back into the forest.
type Observer interface {
	FitStarted(info FitInfo)
	FitFinished(info FitInfo, elapsed time.Duration, err error)
	Scored(rows int, elapsed time.Duration)
	RowRejected(row int, err error)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) FitStarted(FitInfo)                        {}
func (NopObserver) FitFinished(FitInfo, time.Duration, error) {}
func (NopObserver) Scored(int, time.Duration)                 {}
func (NopObserver) RowRejected(int, error)                    {}
