package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/internal/visualization"
	"github.com/todmy/isoforest/pkg/iforest"
	"github.com/todmy/isoforest/pkg/models"
)

func datasetResponse(d *storage.Dataset) models.Dataset {
	return models.Dataset{
		ID:        d.ID.String(),
		Name:      d.Name,
		Columns:   d.Columns,
		Rows:      d.RowCount,
		CreatedAt: d.CreatedAt,
	}
}

// ownedDataset loads a dataset of the requesting client. Datasets of other
// clients are reported as missing.
func (s *Server) ownedDataset(w http.ResponseWriter, r *http.Request) (*storage.Dataset, bool) {
	owner, ok := clientID(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return nil, false
	}

	ds, err := s.datasets.GetByID(r.Context(), id)
	if err == nil && ds.OwnerID != owner {
		err = storage.ErrNotFound
	}
	if err != nil {
		respondFailure(w, err, "fetch dataset")
		return nil, false
	}
	return ds, true
}

// handleListDatasets returns all datasets of the authenticated client
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	datasets, err := s.datasets.GetByOwnerID(r.Context(), owner)
	if err != nil {
		respondFailure(w, err, "fetch datasets")
		return
	}

	response := make([]models.Dataset, 0, len(datasets))
	for _, d := range datasets {
		response = append(response, datasetResponse(d))
	}

	respondJSON(w, http.StatusOK, response)
}

// handleCreateDataset stores inline rows
func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	var req models.DatasetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	x, err := iforest.FromRows(req.Rows)
	if err != nil {
		respondFailure(w, err, "read rows")
		return
	}

	columns := req.Columns
	if len(columns) == 0 {
		columns = make([]string, x.Cols())
		for j := range columns {
			columns[j] = fmt.Sprintf("x%d", j)
		}
	}

	ds := &storage.Dataset{OwnerID: owner, Name: req.Name, Columns: columns}
	if err := s.datasets.Create(r.Context(), ds, x); err != nil {
		respondFailure(w, err, "save dataset")
		return
	}

	respondJSON(w, http.StatusCreated, datasetResponse(ds))
}

// handleGetDataset returns a specific dataset
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.ownedDataset(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, datasetResponse(ds))
}

// handleDeleteDataset removes a dataset and its rows
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.ownedDataset(w, r)
	if !ok {
		return
	}

	if err := s.datasets.Delete(r.Context(), ds.ID); err != nil {
		respondFailure(w, err, "delete dataset")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDetect trains on a stored dataset and scores the same rows with the
// requested detector, without storing a model
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.ownedDataset(w, r)
	if !ok {
		return
	}

	var req models.DetectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	detector, err := anomaly.ParseDetectorType(req.Detector)
	if err != nil {
		respondFailure(w, err, "parse detector")
		return
	}

	x, err := s.datasets.Matrix(r.Context(), ds.ID)
	if err != nil {
		respondFailure(w, err, "load dataset")
		return
	}

	svc := s.service(func(c *anomaly.Config) {
		c.Detector = detector
		if req.K > 0 {
			c.K = req.K
		}
		if req.NTrees > 0 {
			c.NumTrees = req.NTrees
		}
		if req.SampleSize != nil {
			c.SampleSize = *req.SampleSize
		}
		if req.Threshold > 0 {
			c.Threshold = req.Threshold
		}
		c.Standardize = c.Standardize || req.Standardize
		if req.Seed != nil {
			c.Seed = req.Seed
		}
	})

	results, err := svc.DetectAnomalies(x, x)
	if err != nil {
		respondFailure(w, err, "detect anomalies")
		return
	}

	resp := models.DetectResponse{Detector: string(detector), Results: []models.RowScore{}}
	for _, res := range results {
		if res.IsAnomaly {
			resp.Anomalies++
		} else if req.OnlyAnomaly {
			continue
		}
		score := res.Score
		resp.Results = append(resp.Results, models.RowScore{Index: res.Index, Score: &score, IsAnomaly: res.IsAnomaly})
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleProjection projects the dataset rows with PCA. With ?model=<id> the
// points are scored by that model.
func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.ownedDataset(w, r)
	if !ok {
		return
	}

	dims := 0
	if v := r.URL.Query().Get("dims"); v != "" {
		var err error
		if dims, err = strconv.Atoi(v); err != nil {
			respondError(w, http.StatusBadRequest, "dims must be an integer")
			return
		}
	}

	x, err := s.datasets.Matrix(r.Context(), ds.ID)
	if err != nil {
		respondFailure(w, err, "load dataset")
		return
	}

	projection, err := visualization.Project(visualization.NewPCAReducer(), x, dims)
	if err != nil {
		respondFailure(w, err, "project dataset")
		return
	}

	if v := r.URL.Query().Get("model"); v != "" {
		modelID, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid model")
			return
		}
		loaded, err := s.registry.Load(r.Context(), modelID)
		if err == nil && loaded.Model.OwnerID != ds.OwnerID {
			err = storage.ErrNotFound
		}
		if err != nil {
			respondFailure(w, err, "load model")
			return
		}

		scores, err := loaded.Detector.Score(x)
		if err == nil {
			err = projection.Annotate(scores, loaded.Detector.Threshold())
		}
		if err != nil {
			respondFailure(w, err, "score dataset")
			return
		}
	}

	respondJSON(w, http.StatusOK, projection)
}
