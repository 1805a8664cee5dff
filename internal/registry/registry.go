// Package registry stores fitted detectors in Postgres and serves them
// through the model cache.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/cache"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/pkg/iforest"
)

var log = logrus.WithField("component", "registry")

// Registry creates, loads and deletes detectors.
type Registry struct {
	models storage.ModelRepository
	cache  cache.ModelCache
	opts   []iforest.Option
}

// New creates a registry. opts are applied to every decoded forest.
func New(models storage.ModelRepository, c cache.ModelCache, opts ...iforest.Option) *Registry {
	if c == nil {
		c = cache.NoOpCache{}
	}
	return &Registry{models: models, cache: c, opts: opts}
}

// Loaded is a stored model together with its decoded detector.
type Loaded struct {
	Model    *storage.Model
	Detector *anomaly.Detector
}

// entry is the cached form of a storage.Model.
type entry struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	DatasetID  uuid.NullUUID   `json:"dataset_id"`
	Name       string          `json:"name"`
	SampleSize int             `json:"sample_size"`
	NTrees     int             `json:"n_trees"`
	NFeatures  int             `json:"n_features"`
	Threshold  float64         `json:"threshold"`
	Detector   json.RawMessage `json:"detector"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toEntry(m *storage.Model) entry {
	return entry{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		DatasetID:  m.DatasetID,
		Name:       m.Name,
		SampleSize: m.SampleSize,
		NTrees:     m.NTrees,
		NFeatures:  m.NFeatures,
		Threshold:  m.Threshold,
		Detector:   m.Detector,
		CreatedAt:  m.CreatedAt,
	}
}

func (e entry) model() *storage.Model {
	return &storage.Model{
		ID:         e.ID,
		OwnerID:    e.OwnerID,
		DatasetID:  e.DatasetID,
		Name:       e.Name,
		SampleSize: e.SampleSize,
		NTrees:     e.NTrees,
		NFeatures:  e.NFeatures,
		Threshold:  e.Threshold,
		Detector:   e.Detector,
		CreatedAt:  e.CreatedAt,
	}
}

// Create encodes d into model, persists it and warms the cache.
func (r *Registry) Create(ctx context.Context, model *storage.Model, d *anomaly.Detector) error {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return fmt.Errorf("failed to encode detector: %w", err)
	}

	forest := d.Forest()
	model.Detector = bytes.TrimSpace(buf.Bytes())
	model.SampleSize = forest.SampleSize()
	model.NTrees = forest.NTrees()
	model.NFeatures = forest.NFeatures()
	model.Threshold = d.Threshold()

	if err := r.models.Create(ctx, model); err != nil {
		return err
	}

	r.store(ctx, model)
	return nil
}

// Get returns the stored model, reading the cache first and back-filling it
// on a miss.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*storage.Model, error) {
	blob, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		log.WithError(err).Warnf("model cache read failed for %s", id)
	}
	if ok {
		var e entry
		if err := json.Unmarshal(blob, &e); err == nil {
			return e.model(), nil
		}
		log.Warnf("dropping undecodable cache entry for %s", id)
		_ = r.cache.Delete(ctx, id)
	}

	model, err := r.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, model)
	return model, nil
}

// Load returns the model and its decoded detector.
func (r *Registry) Load(ctx context.Context, id uuid.UUID) (*Loaded, error) {
	model, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d, err := anomaly.Decode(bytes.NewReader(model.Detector), r.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", id, err)
	}
	return &Loaded{Model: model, Detector: d}, nil
}

// List returns the models of an owner.
func (r *Registry) List(ctx context.Context, ownerID uuid.UUID) ([]*storage.Model, error) {
	return r.models.GetByOwnerID(ctx, ownerID)
}

// Delete removes the model from Postgres and evicts it.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.models.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, id); err != nil {
		log.WithError(err).Warnf("model cache eviction failed for %s", id)
	}
	return nil
}

func (r *Registry) store(ctx context.Context, model *storage.Model) {
	blob, err := json.Marshal(toEntry(model))
	if err != nil {
		log.WithError(err).Warnf("failed to encode cache entry for %s", model.ID)
		return
	}
	// Ignore cache errors
	if err := r.cache.Set(ctx, model.ID, blob); err != nil {
		log.WithError(err).Warnf("model cache write failed for %s", model.ID)
	}
}
