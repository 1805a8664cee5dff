package anomaly

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/todmy/isoforest/pkg/iforest"
)

// StandardScaler centres every column on its training mean and divides by
// the training standard deviation. Zero-variance columns are only centred.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column statistics of x
func FitScaler(x *iforest.Matrix) *StandardScaler {
	s := &StandardScaler{
		Mean: make([]float64, x.Cols()),
		Std:  make([]float64, x.Cols()),
	}
	for j := 0; j < x.Cols(); j++ {
		mean, std := stat.MeanStdDev(x.Col(j), nil)
		if x.Rows() < 2 || !(std > 0) {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x *iforest.Matrix) (*iforest.Matrix, error) {
	if x.Cols() != len(s.Mean) {
		return nil, fmt.Errorf("%w: matrix has %d columns, scaler has %d",
			iforest.ErrIndexOutOfRange, x.Cols(), len(s.Mean))
	}

	out, err := iforest.NewMatrix(x.Cols())
	if err != nil {
		return nil, err
	}
	row := make([]float64, x.Cols())
	for i := 0; i < x.Rows(); i++ {
		s.transformInto(row, x.Row(i))
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TransformRow scales a single row. Rows of the wrong width are returned
// unchanged so the forest can reject them.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	if len(row) != len(s.Mean) {
		return row
	}
	out := make([]float64, len(row))
	s.transformInto(out, row)
	return out
}

func (s *StandardScaler) transformInto(dst, row []float64) {
	for j, v := range row {
		dst[j] = (v - s.Mean[j]) / s.Std[j]
	}
}

func (s *StandardScaler) validate(cols int) error {
	if len(s.Mean) != cols || len(s.Std) != cols {
		return fmt.Errorf("%w: scaler has %d/%d columns, want %d",
			iforest.ErrCorruptModel, len(s.Mean), len(s.Std), cols)
	}
	for _, std := range s.Std {
		if !(std > 0) {
			return fmt.Errorf("%w: scaler deviation %v", iforest.ErrCorruptModel, std)
		}
	}
	return nil
}
