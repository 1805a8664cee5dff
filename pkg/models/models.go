// Package models holds the JSON shapes shared by the HTTP API and the CLI.
package models

import (
	"encoding/json"
	"time"
)

// Dataset describes a stored feature table
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Columns   []string  `json:"columns"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// DatasetRequest creates a dataset from inline rows
type DatasetRequest struct {
	Name    string      `json:"name"`
	Columns []string    `json:"columns,omitempty"`
	Rows    [][]float64 `json:"rows"`
}

// Model describes a stored detector
type Model struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DatasetID  string    `json:"dataset_id,omitempty"`
	SampleSize int       `json:"sample_size"`
	NTrees     int       `json:"n_trees"`
	NFeatures  int       `json:"n_features"`
	Threshold  float64   `json:"threshold"`
	CreatedAt  time.Time `json:"created_at"`
}

// ModelRequest fits a new detector from inline rows or a stored dataset
type ModelRequest struct {
	Name        string      `json:"name"`
	DatasetID   string      `json:"dataset_id,omitempty"`
	Rows        [][]float64 `json:"rows,omitempty"`
	SampleSize  *int        `json:"sample_size,omitempty"`
	NTrees      int         `json:"n_trees,omitempty"`
	Threshold   float64     `json:"threshold,omitempty"`
	Standardize bool        `json:"standardize,omitempty"`
	Seed        *uint64     `json:"seed,omitempty"`
}

// ImportRequest stores a detector exported elsewhere
type ImportRequest struct {
	Name     string          `json:"name"`
	Detector json.RawMessage `json:"detector"`
}

// ScoreRequest carries the rows to score
type ScoreRequest struct {
	Rows [][]float64 `json:"rows"`
}

// RowScore is the result for one row. Score is null when the row was rejected.
type RowScore struct {
	Index     int      `json:"index"`
	Score     *float64 `json:"score"`
	IsAnomaly bool     `json:"is_anomaly"`
	Error     string   `json:"error,omitempty"`
}

// ScoreResponse is the result of a scoring request
type ScoreResponse struct {
	Results   []RowScore `json:"results"`
	Anomalies int        `json:"anomalies"`
	Rejected  int        `json:"rejected"`
}

// DetectRequest runs a one-shot detection over a stored dataset
type DetectRequest struct {
	Detector    string  `json:"detector,omitempty"`
	K           int     `json:"k,omitempty"`
	NTrees      int     `json:"n_trees,omitempty"`
	SampleSize  *int    `json:"sample_size,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	Standardize bool    `json:"standardize,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`
	OnlyAnomaly bool    `json:"only_anomalies,omitempty"`
}

// DetectResponse is the result of a one-shot detection
type DetectResponse struct {
	Detector  string     `json:"detector"`
	Results   []RowScore `json:"results"`
	Anomalies int        `json:"anomalies"`
}
