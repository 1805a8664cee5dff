package anomaly

import (
	"fmt"

	"github.com/todmy/isoforest/pkg/iforest"
)

// DetectorType represents the type of anomaly detector to use
type DetectorType string

const (
	DetectorDistance  DetectorType = "distance"
	DetectorIsolation DetectorType = "isolation"
	DetectorEnsemble  DetectorType = "ensemble"
)

// ParseDetectorType validates a detector name.
func ParseDetectorType(s string) (DetectorType, error) {
	switch t := DetectorType(s); t {
	case DetectorDistance, DetectorIsolation, DetectorEnsemble:
		return t, nil
	case "":
		return DefaultConfig().Detector, nil
	default:
		return "", fmt.Errorf("%w: unknown detector %q", iforest.ErrInvalidConfig, s)
	}
}

// Config holds anomaly detection service configuration
type Config struct {
	Detector    DetectorType
	K           int     // For distance-based (number of neighbors)
	NumTrees    int     // For isolation forest
	MaxTrees    int     // Upper bound on NumTrees
	SampleSize  int     // For isolation forest, 0 means every training row
	Threshold   float64 // Anomaly threshold (0-1)
	Workers     int
	Seed        *uint64
	Standardize bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Detector:   DetectorIsolation,
		K:          5,
		NumTrees:   100,
		MaxTrees:   10000,
		SampleSize: 256,
		Threshold:  0.6,
	}
}

// Service trains detectors and scores datasets
type Service struct {
	config   Config
	observer iforest.Observer
}

// NewService creates a new anomaly detection service. observer may be nil.
func NewService(config Config, observer iforest.Observer) *Service {
	if config.Detector == "" {
		config.Detector = DefaultConfig().Detector
	}
	if config.K <= 0 {
		config.K = DefaultConfig().K
	}
	if config.NumTrees <= 0 {
		config.NumTrees = DefaultConfig().NumTrees
	}
	if config.MaxTrees <= 0 {
		config.MaxTrees = DefaultConfig().MaxTrees
	}
	if config.SampleSize < 0 {
		config.SampleSize = DefaultConfig().SampleSize
	}
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = DefaultConfig().Threshold
	}

	return &Service{config: config, observer: observer}
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.config
}

// ForestOptions returns the forest options derived from the configuration.
func (s *Service) ForestOptions() []iforest.Option {
	opts := []iforest.Option{iforest.WithObserver(s.observer)}
	if s.config.Workers > 0 {
		opts = append(opts, iforest.WithWorkers(s.config.Workers))
	}
	if s.config.Seed != nil {
		opts = append(opts, iforest.WithSeed(*s.config.Seed))
	}
	return opts
}

// Train fits an isolation-forest detector on x. The sample size is capped
// at the number of training rows; the tree count is not.
func (s *Service) Train(x *iforest.Matrix) (*Detector, error) {
	if s.config.NumTrees > s.config.MaxTrees {
		return nil, fmt.Errorf("%w: %d trees exceeds the limit of %d", iforest.ErrInvalidConfig, s.config.NumTrees, s.config.MaxTrees)
	}
	if x == nil || x.Rows() == 0 {
		return nil, iforest.ErrEmptyInput
	}

	var scaler *StandardScaler
	if s.config.Standardize {
		scaler = FitScaler(x)
		scaled, err := scaler.Transform(x)
		if err != nil {
			return nil, err
		}
		x = scaled
	}

	sampleSize := s.config.SampleSize
	if sampleSize > x.Rows() {
		sampleSize = x.Rows()
	}

	forest := iforest.New(sampleSize, s.config.NumTrees, s.ForestOptions()...)
	if err := forest.Fit(x); err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	return NewDetector(forest, scaler, s.config.Threshold), nil
}

// DetectAnomalies trains on train and scores x with the configured detector.
// The ensemble averages the isolation and distance scores.
func (s *Service) DetectAnomalies(train, x *iforest.Matrix) ([]Result, error) {
	var (
		scores []float64
		err    error
	)
	switch s.config.Detector {
	case DetectorDistance:
		scores, err = s.distanceScores(train, x)
	case DetectorIsolation:
		scores, err = s.isolationScores(train, x)
	default:
		scores, err = s.ensembleScores(train, x)
	}
	if err != nil {
		return nil, err
	}

	return thresholdResults(scores, s.config.Threshold), nil
}

// GetAnomalies returns only rows flagged as anomalies
func (s *Service) GetAnomalies(train, x *iforest.Matrix) ([]Result, error) {
	all, err := s.DetectAnomalies(train, x)
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

func (s *Service) isolationScores(train, x *iforest.Matrix) ([]float64, error) {
	d, err := s.Train(train)
	if err != nil {
		return nil, err
	}
	return d.Score(x)
}

func (s *Service) distanceScores(train, x *iforest.Matrix) ([]float64, error) {
	if train == nil || x == nil {
		return nil, iforest.ErrEmptyInput
	}
	if s.config.Standardize {
		scaler := FitScaler(train)
		scaledTrain, err := scaler.Transform(train)
		if err != nil {
			return nil, err
		}
		if x == train {
			x = scaledTrain
		} else if x, err = scaler.Transform(x); err != nil {
			return nil, err
		}
		train = scaledTrain
	}
	return NewDistanceDetector(train, s.config.K).Detect(x)
}

func (s *Service) ensembleScores(train, x *iforest.Matrix) ([]float64, error) {
	distScores, err := s.distanceScores(train, x)
	if err != nil {
		return nil, err
	}
	isoScores, err := s.isolationScores(train, x)
	if err != nil {
		return nil, err
	}

	// Combine with equal weights
	combined := make([]float64, len(isoScores))
	for i := range combined {
		combined[i] = (distScores[i] + isoScores[i]) / 2.0
	}
	return combined, nil
}

// SetThreshold updates the anomaly threshold
func (s *Service) SetThreshold(threshold float64) {
	if threshold > 0 && threshold <= 1 {
		s.config.Threshold = threshold
	}
}

// GetThreshold returns the current anomaly threshold
func (s *Service) GetThreshold() float64 {
	return s.config.Threshold
}
