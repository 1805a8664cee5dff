package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/todmy/isoforest/internal/auth"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/pkg/iforest"
	"github.com/todmy/isoforest/pkg/models"
)

var log = logrus.WithField("component", "api")

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientID returns the authenticated client, writing 401 if there is none
func clientID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(claims.ClientID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a uuid path parameter, writing 400 if it is malformed
func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// respondFailure maps domain errors to status codes
func respondFailure(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, iforest.ErrEmptyInput),
		errors.Is(err, iforest.ErrShapeMismatch),
		errors.Is(err, iforest.ErrNonFinite),
		errors.Is(err, iforest.ErrIndexOutOfRange),
		errors.Is(err, iforest.ErrInvalidConfig):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, iforest.ErrCorruptModel):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.WithError(err).Errorf("failed to %s", action)
		respondError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// rowScores merges scores with the per-row errors returned by ScoreRows
func rowScores(scores []float64, threshold float64, err error) models.ScoreResponse {
	resp := models.ScoreResponse{Results: make([]models.RowScore, len(scores))}
	for i := range scores {
		resp.Results[i].Index = i
	}

	for _, e := range multierr.Errors(err) {
		var rowErr *iforest.RowError
		if errors.As(e, &rowErr) && rowErr.Row < len(scores) {
			resp.Results[rowErr.Row].Error = rowErr.Err.Error()
		}
	}

	for i, score := range scores {
		if resp.Results[i].Error != "" {
			resp.Rejected++
			continue
		}
		score := score
		resp.Results[i].Score = &score
		if score >= threshold {
			resp.Results[i].IsAnomaly = true
			resp.Anomalies++
		}
	}
	return resp
}
