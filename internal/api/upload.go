package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/todmy/isoforest/internal/dataset"
	"github.com/todmy/isoforest/internal/storage"
)

// handleUploadDataset stores a CSV file sent as multipart form field "file".
// Optional form fields: name, header ("true"), columns (comma separated indices).
func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	owner, ok := clientID(w, r)
	if !ok {
		return
	}

	// Limit upload size
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	// Parse multipart form
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	// Validate file extension
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".csv" && ext != ".tsv" {
		respondError(w, http.StatusBadRequest, "only .csv and .tsv files are allowed")
		return
	}

	opts := dataset.CSVOptions{Header: r.FormValue("header") == "true"}
	if ext == ".tsv" {
		opts.Comma = '\t'
	}
	if cols := r.FormValue("columns"); cols != "" {
		for _, c := range strings.Split(cols, ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				respondError(w, http.StatusBadRequest, "columns must be comma separated indices")
				return
			}
			opts.Columns = append(opts.Columns, idx)
		}
	}

	table, err := dataset.ReadCSV(file, opts)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	ds := &storage.Dataset{
		OwnerID: owner,
		Name:    name,
		Columns: table.Columns,
	}
	if err := s.datasets.Create(r.Context(), ds, table.Matrix); err != nil {
		respondFailure(w, err, "save dataset")
		return
	}

	respondJSON(w, http.StatusCreated, datasetResponse(ds))
}
