package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/isoforest/pkg/iforest"
)

// Dataset is a stored feature table. Its rows live in dataset_rows as
// pgvector values, so cells are kept at float32 precision.
type Dataset struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Columns   []string
	RowCount  int
	CreatedAt time.Time
}

// DatasetRepository defines the interface for dataset storage operations
type DatasetRepository interface {
	Create(ctx context.Context, dataset *Dataset, x *iforest.Matrix) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*Dataset, error)
	Matrix(ctx context.Context, id uuid.UUID) (*iforest.Matrix, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresDatasetRepository implements DatasetRepository using PostgreSQL with pgvector
type PostgresDatasetRepository struct {
	db *sql.DB
}

// NewPostgresDatasetRepository creates a new PostgresDatasetRepository
func NewPostgresDatasetRepository(db *sql.DB) *PostgresDatasetRepository {
	return &PostgresDatasetRepository{db: db}
}

// Create inserts the dataset and all rows of x in a single transaction
func (r *PostgresDatasetRepository) Create(ctx context.Context, dataset *Dataset, x *iforest.Matrix) error {
	if x == nil || x.Rows() == 0 {
		return iforest.ErrEmptyInput
	}
	if len(dataset.Columns) != x.Cols() {
		return fmt.Errorf("%w: %d column names for %d columns", iforest.ErrShapeMismatch, len(dataset.Columns), x.Cols())
	}

	if err := fitsFloat32(x); err != nil {
		return err
	}

	if dataset.ID == uuid.Nil {
		dataset.ID = uuid.New()
	}
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = time.Now()
	}
	dataset.RowCount = x.Rows()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (id, owner_id, name, columns, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		dataset.ID,
		dataset.OwnerID,
		dataset.Name,
		pq.Array(dataset.Columns),
		dataset.RowCount,
		dataset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset_rows (dataset_id, position, features)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	features := make([]float32, x.Cols())
	for i := 0; i < x.Rows(); i++ {
		for j, v := range x.Row(i) {
			features[j] = float32(v)
		}
		if _, err := stmt.ExecContext(ctx, dataset.ID, i, pgvector.NewVector(features)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a dataset by its ID
func (r *PostgresDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	query := `
		SELECT id, owner_id, name, columns, row_count, created_at
		FROM datasets
		WHERE id = $1
	`

	dataset := &Dataset{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&dataset.ID,
		&dataset.OwnerID,
		&dataset.Name,
		pq.Array(&dataset.Columns),
		&dataset.RowCount,
		&dataset.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return dataset, nil
}

// GetByOwnerID retrieves all datasets of an owner, newest first
func (r *PostgresDatasetRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*Dataset, error) {
	query := `
		SELECT id, owner_id, name, columns, row_count, created_at
		FROM datasets
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []*Dataset{}
	for rows.Next() {
		dataset := &Dataset{}
		err := rows.Scan(
			&dataset.ID,
			&dataset.OwnerID,
			&dataset.Name,
			pq.Array(&dataset.Columns),
			&dataset.RowCount,
			&dataset.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, dataset)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return datasets, nil
}

// Matrix loads the rows of a dataset in their original order.
func (r *PostgresDatasetRepository) Matrix(ctx context.Context, id uuid.UUID) (*iforest.Matrix, error) {
	query := `
		SELECT features
		FROM dataset_rows
		WHERE dataset_id = $1
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset rows: %w", err)
	}
	defer rows.Close()

	var (
		x   *iforest.Matrix
		row []float64
	)
	for rows.Next() {
		var features pgvector.Vector
		if err := rows.Scan(&features); err != nil {
			return nil, err
		}

		values := features.Slice()
		if x == nil {
			if x, err = iforest.NewMatrix(len(values)); err != nil {
				return nil, err
			}
			row = make([]float64, len(values))
		}
		if len(values) != len(row) {
			return nil, fmt.Errorf("%w: stored row has %d values, want %d", iforest.ErrShapeMismatch, len(values), len(row))
		}
		for j, v := range values {
			row[j] = float64(v)
		}
		if err := x.AppendRow(row); err != nil {
			return nil, err
		}
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	if x == nil {
		return nil, ErrNotFound
	}

	return x, nil
}

// Delete removes a dataset and its rows
func (r *PostgresDatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// fitsFloat32 reports cells that would turn into infinities in a pgvector
// column.
func fitsFloat32(x *iforest.Matrix) error {
	for i := 0; i < x.Rows(); i++ {
		for j, v := range x.Row(i) {
			if math.Abs(v) > math.MaxFloat32 {
				return fmt.Errorf("%w: row %d column %d exceeds float32 range", iforest.ErrNonFinite, i, j)
			}
		}
	}
	return nil
}
