package anomaly

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/todmy/isoforest/pkg/iforest"
)

// Result is the verdict for one scored row
type Result struct {
	Index     int     `json:"index"`
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

// Detector is a fitted isolation forest together with the preprocessing and
// threshold it was trained with. It is safe for concurrent scoring.
type Detector struct {
	forest    *iforest.Forest
	scaler    *StandardScaler
	threshold float64
}

// NewDetector wraps an already fitted forest.
func NewDetector(forest *iforest.Forest, scaler *StandardScaler, threshold float64) *Detector {
	return &Detector{forest: forest, scaler: scaler, threshold: threshold}
}

// Forest returns the underlying forest
func (d *Detector) Forest() *iforest.Forest { return d.forest }

// Threshold returns the score at or above which a row is an anomaly
func (d *Detector) Threshold() float64 { return d.threshold }

// Standardized reports whether rows are scaled before scoring.
func (d *Detector) Standardized() bool { return d.scaler != nil }

// Score returns the anomaly score of every row of x.
func (d *Detector) Score(x *iforest.Matrix) ([]float64, error) {
	if d.scaler != nil && x != nil {
		scaled, err := d.scaler.Transform(x)
		if err != nil {
			return nil, err
		}
		x = scaled
	}
	return d.forest.AnomalyScore(x)
}

// ScoreRows scores unvalidated rows. Failed rows get a NaN score and are
// reported in the returned error; see iforest.Forest.ScoreRows.
func (d *Detector) ScoreRows(rows [][]float64) ([]float64, error) {
	if d.scaler != nil {
		scaled := make([][]float64, len(rows))
		for i, row := range rows {
			scaled[i] = d.scaler.TransformRow(row)
		}
		rows = scaled
	}
	return d.forest.ScoreRows(rows)
}

// Detect scores x and applies the threshold.
func (d *Detector) Detect(x *iforest.Matrix) ([]Result, error) {
	scores, err := d.Score(x)
	if err != nil {
		return nil, err
	}
	return d.results(scores), nil
}

// Anomalies returns only the rows of x flagged as anomalies
func (d *Detector) Anomalies(x *iforest.Matrix) ([]Result, error) {
	all, err := d.Detect(x)
	if err != nil {
		return nil, err
	}

	anomalies := []Result{}
	for _, r := range all {
		if r.IsAnomaly {
			anomalies = append(anomalies, r)
		}
	}
	return anomalies, nil
}

func (d *Detector) results(scores []float64) []Result {
	return thresholdResults(scores, d.threshold)
}

func thresholdResults(scores []float64, threshold float64) []Result {
	results := make([]Result, len(scores))
	for i, s := range scores {
		results[i] = Result{Index: i, Score: s, IsAnomaly: s >= threshold}
	}
	return results
}

// DetectorRecord is the serialized form of a Detector.
type DetectorRecord struct {
	Threshold float64               `json:"threshold"`
	Scaler    *StandardScaler       `json:"scaler,omitempty"`
	Forest    *iforest.ForestRecord `json:"forest"`
}

// Record captures the detector for persistence.
func (d *Detector) Record() *DetectorRecord {
	return &DetectorRecord{
		Threshold: d.threshold,
		Scaler:    d.scaler,
		Forest:    d.forest.Record(),
	}
}

// FromRecord rebuilds a detector. opts are passed to the forest.
func FromRecord(rec *DetectorRecord, opts ...iforest.Option) (*Detector, error) {
	if rec == nil || rec.Forest == nil {
		return nil, fmt.Errorf("%w: missing forest", iforest.ErrCorruptModel)
	}
	forest, err := iforest.FromRecord(rec.Forest, opts...)
	if err != nil {
		return nil, err
	}
	if !forest.Fitted() {
		return nil, fmt.Errorf("%w: detector forest is not fitted", iforest.ErrCorruptModel)
	}
	if rec.Scaler != nil {
		if err := rec.Scaler.validate(forest.NFeatures()); err != nil {
			return nil, err
		}
	}
	return NewDetector(forest, rec.Scaler, rec.Threshold), nil
}

// Encode writes the detector as JSON.
func (d *Detector) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(d.Record())
}

// Decode reads a detector written by Encode.
func Decode(r io.Reader, opts ...iforest.Option) (*Detector, error) {
	var rec DetectorRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", iforest.ErrCorruptModel, err)
	}
	return FromRecord(&rec, opts...)
}
