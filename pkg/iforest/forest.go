package iforest

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Forest is an isolation forest: an ensemble of randomized isolation trees.
//
// A Forest is safe for concurrent use. Scoring runs against an immutable
// snapshot of the trees, and Fit swaps in a new tree set only after every
// tree has been built.
type Forest struct {
	mu         sync.RWMutex
	sampleSize int
	nTrees     int
	nFeatures  int
	trees      []Tree

	seed     uint64
	seeded   bool
	workers  int
	observer Observer

	// buildTree grows tree i from its bootstrap sample. Nil means
	// growTree; tests swap it to inject failures.
	buildTree func(i int, b *treeBuilder, sample *Matrix) (Node, error)
}

func growTree(_ int, b *treeBuilder, sample *Matrix) (Node, error) {
	return b.build(sample, 0)
}

// New creates an unfitted forest. A sampleSize of 0 means every Fit input row
// count is used as the bootstrap size (resolved once, at the first Fit).
func New(sampleSize, nTrees int, opts ...Option) *Forest {
	f := &Forest{
		sampleSize: sampleSize,
		nTrees:     nTrees,
		observer:   NopObserver{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.workers < 1 {
		f.workers = defaultWorkers()
	}
	return f
}

// SampleSize returns the bootstrap size, 0 if it has not been resolved yet.
func (f *Forest) SampleSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sampleSize
}

// NTrees returns the configured ensemble width.
func (f *Forest) NTrees() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nTrees
}

// NFeatures returns the column count the forest was trained on.
func (f *Forest) NFeatures() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nFeatures
}

// Fitted reports whether a Fit has succeeded.
func (f *Forest) Fitted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.trees) > 0
}

// Trees returns the built trees. The trees are shared and must not be modified.
func (f *Forest) Trees() []Tree {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Tree(nil), f.trees...)
}

// Fit builds NTrees trees, each from its own bootstrap sample of x drawn with
// replacement. Trees are built concurrently and Fit returns once all of them
// are done. If any tree fails the call fails and the previous trees are kept.
func (f *Forest) Fit(x *Matrix) error {
	if x == nil || x.Rows() == 0 {
		return ErrEmptyInput
	}
	if x.Cols() == 0 {
		return ErrShapeMismatch
	}

	f.mu.Lock()
	if f.nTrees < 1 || f.sampleSize < 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: sample size %d, trees %d", ErrInvalidConfig, f.sampleSize, f.nTrees)
	}
	if f.sampleSize == 0 {
		f.sampleSize = x.Rows()
	}
	sampleSize, nTrees := f.sampleSize, f.nTrees
	f.mu.Unlock()

	info := FitInfo{
		Rows:        x.Rows(),
		Cols:        x.Cols(),
		SampleSize:  sampleSize,
		Trees:       nTrees,
		HeightLimit: heightLimit(sampleSize),
	}
	f.observer.FitStarted(info)
	start := time.Now()

	trees, err := f.grow(x, sampleSize, nTrees, info.HeightLimit)
	if err == nil {
		f.mu.Lock()
		f.trees = trees
		f.nFeatures = x.Cols()
		f.mu.Unlock()
	}

	f.observer.FitFinished(info, time.Since(start), err)
	return err
}

// grow builds every tree on the worker pool. Task i writes only trees[i].
func (f *Forest) grow(x *Matrix, sampleSize, nTrees, limit int) ([]Tree, error) {
	seed := f.seed
	if !f.seeded {
		seed = rand.Uint64()
	}

	build := f.buildTree
	if build == nil {
		build = growTree
	}

	trees := make([]Tree, nTrees)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(f.workers)

	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			sample := bootstrap(x, sampleSize, rng)

			b := &treeBuilder{splitter: NewRandomSplitter(rng), heightLimit: limit}
			root, err := build(i, b, sample)
			if err != nil {
				return &BuildError{Tree: i, Err: err}
			}

			trees[i] = Tree{Root: root, HeightLimit: limit}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trees, nil
}

// bootstrap draws n rows of x uniformly with replacement.
func bootstrap(x *Matrix, n int, rng *rand.Rand) *Matrix {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.IntN(x.Rows())
	}
	return x.subset(indices)
}

type snapshot struct {
	trees      []Tree
	sampleSize int
	nTrees     int
	nFeatures  int
}

func (f *Forest) snapshot() snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return snapshot{trees: f.trees, sampleSize: f.sampleSize, nTrees: f.nTrees, nFeatures: f.nFeatures}
}

// AnomalyScore returns one score per row of x, in row order.
// The whole call fails if x does not have the trained column count.
func (f *Forest) AnomalyScore(x *Matrix) ([]float64, error) {
	s := f.snapshot()
	if len(s.trees) == 0 {
		return nil, ErrNotFitted
	}
	if x == nil || x.Rows() == 0 {
		return nil, ErrEmptyInput
	}
	if x.Cols() != s.nFeatures {
		return nil, fmt.Errorf("%w: matrix has %d columns, forest was trained on %d",
			ErrIndexOutOfRange, x.Cols(), s.nFeatures)
	}

	start := time.Now()
	scores := make([]float64, x.Rows())
	f.eachRow(x.Rows(), len(s.trees), func(i int, buf []float64) {
		scores[i] = score(pathMean(s.trees, x.Row(i), buf), s.sampleSize)
	})
	f.observer.Scored(x.Rows(), time.Since(start))

	return scores, nil
}

// Score returns the anomaly score of a single row.
func (f *Forest) Score(row []float64) (float64, error) {
	s := f.snapshot()
	if len(s.trees) == 0 {
		return 0, ErrNotFitted
	}
	if err := checkScoredRow(row, s.nFeatures); err != nil {
		return 0, err
	}
	return score(pathMean(s.trees, row, make([]float64, 0, len(s.trees))), s.sampleSize), nil
}

// ScoreRows scores rows that have not been validated as a Matrix. Rows with
// the wrong width or non-finite values get a NaN score and a *RowError; the
// returned error combines every RowError, and valid rows are still scored.
func (f *Forest) ScoreRows(rows [][]float64) ([]float64, error) {
	s := f.snapshot()
	if len(s.trees) == 0 {
		return nil, ErrNotFitted
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	scores := make([]float64, len(rows))
	rowErrs := make([]error, len(rows))
	f.eachRow(len(rows), len(s.trees), func(i int, buf []float64) {
		if err := checkScoredRow(rows[i], s.nFeatures); err != nil {
			scores[i] = math.NaN()
			rowErrs[i] = &RowError{Row: i, Err: err}
			return
		}
		scores[i] = score(pathMean(s.trees, rows[i], buf), s.sampleSize)
	})
	f.observer.Scored(len(rows), time.Since(start))

	var errs error
	for i, err := range rowErrs {
		if err != nil {
			f.observer.RowRejected(i, err)
			errs = multierr.Append(errs, err)
		}
	}
	return scores, errs
}

func checkScoredRow(row []float64, nFeatures int) error {
	if len(row) != nFeatures {
		return fmt.Errorf("%w: row has %d values, forest was trained on %d",
			ErrIndexOutOfRange, len(row), nFeatures)
	}
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: column %d", ErrNonFinite, j)
		}
	}
	return nil
}

// eachRow runs fn for every index in [0, n) on the worker pool. Rows are
// split into contiguous chunks, one per worker, so each task writes a
// disjoint range of any output slice. buf is scratch space owned by the chunk.
func (f *Forest) eachRow(n, bufSize int, fn func(i int, buf []float64)) {
	workers := min(f.workers, n)
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			buf := make([]float64, 0, bufSize)
			for i := lo; i < hi; i++ {
				fn(i, buf)
			}
			return nil
		})
	}
	_ = g.Wait()
}
