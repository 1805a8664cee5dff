package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Model is a stored detector. Detector holds the JSON-encoded detector record.
type Model struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	DatasetID  uuid.NullUUID
	Name       string
	SampleSize int
	NTrees     int
	NFeatures  int
	Threshold  float64
	Detector   []byte
	CreatedAt  time.Time
}

// ModelRepository defines the interface for model storage operations
type ModelRepository interface {
	Create(ctx context.Context, model *Model) error
	GetByID(ctx context.Context, id uuid.UUID) (*Model, error)
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*Model, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresModelRepository implements ModelRepository using PostgreSQL
type PostgresModelRepository struct {
	db *sql.DB
}

// NewPostgresModelRepository creates a new PostgresModelRepository
func NewPostgresModelRepository(db *sql.DB) *PostgresModelRepository {
	return &PostgresModelRepository{db: db}
}

// Create inserts a new model into the database
func (r *PostgresModelRepository) Create(ctx context.Context, model *Model) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO models (id, owner_id, dataset_id, name, sample_size, n_trees, n_features, threshold, detector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		model.ID,
		model.OwnerID,
		model.DatasetID,
		model.Name,
		model.SampleSize,
		model.NTrees,
		model.NFeatures,
		model.Threshold,
		model.Detector,
		model.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// GetByID retrieves a model, including the encoded detector
func (r *PostgresModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*Model, error) {
	query := `
		SELECT id, owner_id, dataset_id, name, sample_size, n_trees, n_features, threshold, detector, created_at
		FROM models
		WHERE id = $1
	`

	model := &Model{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&model.ID,
		&model.OwnerID,
		&model.DatasetID,
		&model.Name,
		&model.SampleSize,
		&model.NTrees,
		&model.NFeatures,
		&model.Threshold,
		&model.Detector,
		&model.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return model, nil
}

// GetByOwnerID lists the models of an owner without their detector blobs
func (r *PostgresModelRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*Model, error) {
	query := `
		SELECT id, owner_id, dataset_id, name, sample_size, n_trees, n_features, threshold, created_at
		FROM models
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []*Model{}
	for rows.Next() {
		model := &Model{}
		err := rows.Scan(
			&model.ID,
			&model.OwnerID,
			&model.DatasetID,
			&model.Name,
			&model.SampleSize,
			&model.NTrees,
			&model.NFeatures,
			&model.Threshold,
			&model.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return models, nil
}

// Delete removes a model from the database
func (r *PostgresModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return requireAffected(res)
}
