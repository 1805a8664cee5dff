package visualization

import (
	"fmt"

	"github.com/todmy/isoforest/pkg/iforest"
)

// Point is one projected row. Score is set when the projection was scored.
type Point struct {
	Index     int      `json:"index"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Z         float64  `json:"z,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	IsAnomaly bool     `json:"is_anomaly,omitempty"`
}

// Projection holds the projected rows of a dataset
type Projection struct {
	Points            []Point   `json:"points"`
	Method            string    `json:"method"`
	Dimensions        int       `json:"dimensions"`
	ExplainedVariance []float64 `json:"explained_variance"`
}

// Project reduces x to dims (2 or 3) coordinates per row.
func Project(reducer Reducer, x *iforest.Matrix, dims int) (*Projection, error) {
	if dims == 0 {
		dims = 2
	}
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("%w: dimensions must be 2 or 3, got %d", iforest.ErrInvalidConfig, dims)
	}

	coords, explained, err := reducer.Reduce(x, dims)
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		p := Point{Index: i, X: coord[0]}
		if len(coord) > 1 {
			p.Y = coord[1]
		}
		if len(coord) > 2 {
			p.Z = coord[2]
		}
		points[i] = p
	}

	return &Projection{
		Points:            points,
		Method:            reducer.Name(),
		Dimensions:        len(explained),
		ExplainedVariance: explained,
	}, nil
}

// Annotate attaches scores to the projected points. scores must have one
// entry per point.
func (p *Projection) Annotate(scores []float64, threshold float64) error {
	if len(scores) != len(p.Points) {
		return fmt.Errorf("%w: %d scores for %d points", iforest.ErrShapeMismatch, len(scores), len(p.Points))
	}
	for i := range p.Points {
		score := scores[i]
		p.Points[i].Score = &score
		p.Points[i].IsAnomaly = score >= threshold
	}
	return nil
}
