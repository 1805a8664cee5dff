package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// CredentialsRequest is the body of the register and token endpoints
type CredentialsRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// TokenResponse represents the token response
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers holds the HTTP handlers for auth endpoints
type Handlers struct {
	service Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	if len(req.Secret) < 12 {
		respondError(w, http.StatusBadRequest, "secret must be at least 12 characters")
		return
	}

	client, err := h.service.Register(r.Context(), req.Name, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, ErrClientExists):
			respondError(w, http.StatusConflict, "client already exists")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create client")
		}
		return
	}

	respondJSON(w, http.StatusCreated, client)
}

// Token handles POST /auth/token
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	token, err := h.service.IssueToken(r.Context(), req.Name, req.Secret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Me handles GET /auth/me - returns the authenticated client
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":   claims.ClientID,
		"name": claims.Name,
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	if req.Name == "" || req.Secret == "" {
		respondError(w, http.StatusBadRequest, "name and secret are required")
		return req, false
	}
	return req, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
