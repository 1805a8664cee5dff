// Package iforest implements isolation-forest anomaly scoring.
//
// A Forest is an ensemble of random binary trees. Each tree is grown from a
// bootstrap sample of the training Matrix by repeatedly choosing a random
// feature and a random threshold inside that feature's observed range, until
// every row is isolated or the depth limit ceil(log2(sampleSize)) is reached.
// Points that are isolated after few splits are anomalous:
//
//	x, _ := iforest.FromRows(rows)
//	f := iforest.New(256, 100, iforest.WithSeed(7))
//	if err := f.Fit(x); err != nil {
//		return err
//	}
//	scores, err := f.AnomalyScore(x) // values in (0, 1], higher is more anomalous
//
// Trees are built and evaluated on a fixed-size worker pool. Fitted trees are
// immutable, so any number of goroutines may score against one Forest.
// The package performs no I/O beyond the optional JSON encoding of a fitted
// forest; diagnostics are delivered through an Observer.
package iforest
