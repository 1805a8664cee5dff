package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/registry"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/pkg/iforest"
	"github.com/todmy/isoforest/pkg/models"
)

func modelResponse(m *storage.Model) models.Model {
	resp := models.Model{
		ID:         m.ID.String(),
		Name:       m.Name,
		SampleSize: m.SampleSize,
		NTrees:     m.NTrees,
		NFeatures:  m.NFeatures,
		Threshold:  m.Threshold,
		CreatedAt:  m.CreatedAt,
	}
	if m.DatasetID.Valid {
		resp.DatasetID = m.DatasetID.UUID.String()
	}
	return resp
}

// ownedModel loads a model and its detector for the requesting client.
// Models of other clients are reported as missing.
func (s *Server) ownedModel(w http.ResponseWriter, r *http.Request) (*registry.Loaded, bool) {
	owner, ok := clientID(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, "modelID")
	if !ok {
		return nil, false
	}

	loaded, err := s.registry.Load(r.Context(), id)
	if err == nil && loaded.Model.OwnerID != owner {
		err = storage.ErrNotFound
	}
	if err != nil {
		respondFailure(w, err, "load model")
		return nil, false
	}
	return loaded, true
}

// handleListModels returns all models of the authenticated client
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	list, err := s.registry.List(r.Context(), owner)
	if err != nil {
		respondFailure(w, err, "fetch models")
		return
	}

	response := make([]models.Model, 0, len(list))
	for _, m := range list {
		response = append(response, modelResponse(m))
	}

	respondJSON(w, http.StatusOK, response)
}

// handleCreateModel fits a detector on inline rows or a stored dataset
func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	var req models.ModelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if (req.DatasetID == "") == (len(req.Rows) == 0) {
		respondError(w, http.StatusBadRequest, "exactly one of dataset_id or rows is required")
		return
	}

	model := &storage.Model{OwnerID: owner, Name: req.Name}

	var x *iforest.Matrix
	if req.DatasetID != "" {
		datasetID, err := uuid.Parse(req.DatasetID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid dataset_id")
			return
		}
		ds, err := s.datasets.GetByID(r.Context(), datasetID)
		if err == nil && ds.OwnerID != owner {
			err = storage.ErrNotFound
		}
		if err == nil {
			x, err = s.datasets.Matrix(r.Context(), datasetID)
		}
		if err != nil {
			respondFailure(w, err, "load dataset")
			return
		}
		model.DatasetID = uuid.NullUUID{UUID: datasetID, Valid: true}
	} else {
		var err error
		if x, err = iforest.FromRows(req.Rows); err != nil {
			respondFailure(w, err, "read rows")
			return
		}
	}

	svc := s.service(func(c *anomaly.Config) {
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

	detector, err := svc.Train(x)
	if err != nil {
		respondFailure(w, err, "train model")
		return
	}

	if err := s.registry.Create(r.Context(), model, detector); err != nil {
		respondFailure(w, err, "save model")
		return
	}

	respondJSON(w, http.StatusCreated, modelResponse(model))
}

// handleImportModel stores a detector exported by handleExportModel or the CLI
func (s *Server) handleImportModel(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	var req models.ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || len(req.Detector) == 0 {
		respondError(w, http.StatusBadRequest, "name and detector are required")
		return
	}

	detector, err := anomaly.Decode(bytes.NewReader(req.Detector), iforest.WithObserver(s.observer))
	if err != nil {
		respondFailure(w, err, "decode detector")
		return
	}

	model := &storage.Model{OwnerID: owner, Name: req.Name}
	if err := s.registry.Create(r.Context(), model, detector); err != nil {
		respondFailure(w, err, "save model")
		return
	}

	respondJSON(w, http.StatusCreated, modelResponse(model))
}

// handleGetModel returns a specific model
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	loaded, ok := s.ownedModel(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, modelResponse(loaded.Model))
}

// handleDeleteModel removes a model and evicts it from the cache
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	loaded, ok := s.ownedModel(w, r)
	if !ok {
		return
	}

	if err := s.registry.Delete(r.Context(), loaded.Model.ID); err != nil {
		respondFailure(w, err, "delete model")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleScore scores rows against a stored model. Rows that cannot be scored
// are reported individually.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	loaded, ok := s.ownedModel(w, r)
	if !ok {
		return
	}

	var req models.ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Rows) == 0 {
		respondFailure(w, iforest.ErrEmptyInput, "score rows")
		return
	}

	scores, err := loaded.Detector.ScoreRows(req.Rows)
	if scores == nil {
		respondFailure(w, err, "score rows")
		return
	}
	respondJSON(w, http.StatusOK, rowScores(scores, loaded.Detector.Threshold(), err))
}

// handleExportModel downloads the encoded detector
func (s *Server) handleExportModel(w http.ResponseWriter, r *http.Request) {
	loaded, ok := s.ownedModel(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", loaded.Model.ID.String()+".json"))
	w.WriteHeader(http.StatusOK)
	w.Write(loaded.Model.Detector)
}
