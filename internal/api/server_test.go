package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/auth"
	"github.com/todmy/isoforest/internal/registry"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/internal/visualization"
	"github.com/todmy/isoforest/pkg/iforest"
	"github.com/todmy/isoforest/pkg/models"
)

type memoryClients struct {
	mu      sync.Mutex
	clients map[string]*auth.Client
}

func (m *memoryClients) Create(_ context.Context, client *auth.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	client.ID = uuid.New().String()
	m.clients[client.Name] = client
	return nil
}

func (m *memoryClients) GetByID(_ context.Context, id string) (*auth.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, auth.ErrClientNotFound
}

func (m *memoryClients) GetByName(_ context.Context, name string) (*auth.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[name]
	if !ok {
		return nil, auth.ErrClientNotFound
	}
	return c, nil
}

type memoryDatasets struct {
	mu       sync.Mutex
	datasets map[uuid.UUID]*storage.Dataset
	matrices map[uuid.UUID]*iforest.Matrix
}

func (m *memoryDatasets) Create(_ context.Context, d *storage.Dataset, x *iforest.Matrix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.RowCount = x.Rows()
	d.CreatedAt = time.Now()
	m.datasets[d.ID] = d
	m.matrices[d.ID] = x
	return nil
}

func (m *memoryDatasets) GetByID(_ context.Context, id uuid.UUID) (*storage.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (m *memoryDatasets) GetByOwnerID(_ context.Context, owner uuid.UUID) ([]*storage.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Dataset
	for _, d := range m.datasets {
		if d.OwnerID == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryDatasets) Matrix(_ context.Context, id uuid.UUID) (*iforest.Matrix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.matrices[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return x, nil
}

func (m *memoryDatasets) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.datasets, id)
	delete(m.matrices, id)
	return nil
}

type memoryModels struct {
	mu     sync.Mutex
	models map[uuid.UUID]*storage.Model
}

func (m *memoryModels) Create(_ context.Context, model *storage.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	model.ID = uuid.New()
	model.CreatedAt = time.Now()
	m.models[model.ID] = model
	return nil
}

func (m *memoryModels) GetByID(_ context.Context, id uuid.UUID) (*storage.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.models[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return model, nil
}

func (m *memoryModels) GetByOwnerID(_ context.Context, owner uuid.UUID) ([]*storage.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.Model
	for _, model := range m.models {
		if model.OwnerID == owner {
			out = append(out, model)
		}
	}
	return out, nil
}

func (m *memoryModels) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.models, id)
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	authService := auth.NewJWTService(auth.Config{
		SecretKey:     "test-secret",
		TokenDuration: time.Hour,
		Issuer:        "isoforest",
	}, &memoryClients{clients: make(map[string]*auth.Client)})

	config := anomaly.DefaultConfig()
	config.NumTrees = 50
	seed := uint64(3)
	config.Seed = &seed

	return NewServer(ServerConfig{
		Auth:     authService,
		Datasets: &memoryDatasets{datasets: make(map[uuid.UUID]*storage.Dataset), matrices: make(map[uuid.UUID]*iforest.Matrix)},
		Registry: registry.New(&memoryModels{models: make(map[uuid.UUID]*storage.Model)}, nil),
		Anomaly:  config,
		Observer: iforest.NopObserver{},
	})
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server, name string) string {
	t.Helper()

	creds := auth.CredentialsRequest{Name: name, Secret: "a-long-client-secret"}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/token", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp auth.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token
}

// clusterRows returns a tight 8x4 grid near the origin followed by one far point.
func clusterRows() [][]float64 {
	rows := make([][]float64, 0, 33)
	for i := 0; i < 32; i++ {
		rows = append(rows, []float64{float64(i%8) * 0.01, float64(i/8) * 0.01})
	}
	return append(rows, []float64{5, 5})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createDataset(t *testing.T, s *Server, token string) models.Dataset {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets", token, models.DatasetRequest{
		Name: "cluster",
		Rows: clusterRows(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Dataset](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/datasets", "/api/v1/models", "/api/v1/auth/me"} {
		rec := doJSON(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestDatasets(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	ds := createDataset(t, s, token)
	assert.Equal(t, "cluster", ds.Name)
	assert.Equal(t, 33, ds.Rows)
	assert.Equal(t, []string{"x0", "x1"}, ds.Columns)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/datasets", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Dataset](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, ds.ID, list[0].ID)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Other clients cannot see the dataset
	other := login(t, s, "bob")
	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/datasets/"+ds.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/datasets/"+ds.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDatasetRejectsBadRows(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	tests := []struct {
		name string
		req  models.DatasetRequest
	}{
		{"missing name", models.DatasetRequest{Rows: [][]float64{{1}}}},
		{"no rows", models.DatasetRequest{Name: "empty"}},
		{"ragged", models.DatasetRequest{Name: "ragged", Rows: [][]float64{{1, 2}, {3}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets", token, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUploadDataset(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	upload := func(filename, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("header", "true"))
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("points.csv", "a,b\n0,0\n0.5,0.5\n1,1\n")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ds := decode[models.Dataset](t, rec)
	assert.Equal(t, "points", ds.Name)
	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, 3, ds.Rows)

	rec = upload("points.txt", "a,b\n0,0\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("bad.csv", "a,b\n0,zero\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetect(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")
	ds := createDataset(t, s, token)

	for _, detector := range []string{"", "isolation", "distance", "ensemble"} {
		t.Run("detector="+detector, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/detect", token,
				models.DetectRequest{Detector: detector, NTrees: 50})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[models.DetectResponse](t, rec)
			require.Len(t, resp.Results, 33)
			outlier := *resp.Results[32].Score
			for _, r := range resp.Results[:32] {
				assert.Less(t, *r.Score, outlier)
			}
		})
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/detect", token,
		models.DetectRequest{Detector: "distance", OnlyAnomaly: true})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.DetectResponse](t, rec)
	assert.Equal(t, resp.Anomalies, len(resp.Results))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, 32, resp.Results[len(resp.Results)-1].Index)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/detect", token,
		models.DetectRequest{Detector: "lof"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTreeCountLimit(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")
	ds := createDataset(t, s, token)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/models", token, models.ModelRequest{
		Name:   "huge",
		Rows:   clusterRows(),
		NTrees: 1 << 40,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/detect", token,
		models.DetectRequest{NTrees: 1 << 40})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/datasets/"+ds.ID+"/detect", token,
		models.DetectRequest{Detector: "ensemble", NTrees: anomaly.DefaultConfig().MaxTrees + 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/v1/models", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Model](t, rec))
}

func TestModelLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")
	ds := createDataset(t, s, token)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/models", token, models.ModelRequest{
		Name:      "from-dataset",
		DatasetID: ds.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	model := decode[models.Model](t, rec)
	assert.Equal(t, ds.ID, model.DatasetID)
	assert.Equal(t, 33, model.SampleSize)
	assert.Equal(t, 50, model.NTrees)
	assert.Equal(t, 2, model.NFeatures)

	// Score valid, outlying and malformed rows in one request
	rec = doJSON(t, s, http.MethodPost, "/api/v1/models/"+model.ID+"/score", token, models.ScoreRequest{
		Rows: [][]float64{{0.03, 0.02}, {5, 5}, {1}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scores := decode[models.ScoreResponse](t, rec)
	require.Len(t, scores.Results, 3)
	assert.Equal(t, 1, scores.Rejected)
	require.NotNil(t, scores.Results[0].Score)
	require.NotNil(t, scores.Results[1].Score)
	assert.Greater(t, *scores.Results[1].Score, *scores.Results[0].Score)
	assert.Nil(t, scores.Results[2].Score)
	assert.NotEmpty(t, scores.Results[2].Error)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/models/"+model.ID+"/score", token, models.ScoreRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Export and import produce a model with identical scores
	rec = doJSON(t, s, http.MethodGet, "/api/v1/models/"+model.ID+"/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), model.ID+".json")
	exported := rec.Body.Bytes()

	rec = doJSON(t, s, http.MethodPost, "/api/v1/models/import", token, models.ImportRequest{
		Name:     "copy",
		Detector: exported,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decode[models.Model](t, rec)
	assert.Empty(t, imported.DatasetID)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/models/"+imported.ID+"/score", token, models.ScoreRequest{
		Rows: [][]float64{{0.03, 0.02}, {5, 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	copied := decode[models.ScoreResponse](t, rec)
	assert.Equal(t, *scores.Results[0].Score, *copied.Results[0].Score)
	assert.Equal(t, *scores.Results[1].Score, *copied.Results[1].Score)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/models", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Model](t, rec)
	ids := []string{list[0].ID, list[1].ID}
	sort.Strings(ids)
	want := []string{model.ID, imported.ID}
	sort.Strings(want)
	assert.Equal(t, want, ids)

	// Other clients cannot use the model
	other := login(t, s, "bob")
	rec = doJSON(t, s, http.MethodPost, "/api/v1/models/"+model.ID+"/score", other, models.ScoreRequest{
		Rows: [][]float64{{0, 0}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/models/"+model.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/models/"+model.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateModelValidation(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	tests := []struct {
		name string
		req  models.ModelRequest
		want int
	}{
		{"missing name", models.ModelRequest{Rows: [][]float64{{1}}}, http.StatusBadRequest},
		{"no source", models.ModelRequest{Name: "m"}, http.StatusBadRequest},
		{"both sources", models.ModelRequest{Name: "m", DatasetID: uuid.NewString(), Rows: [][]float64{{1}}}, http.StatusBadRequest},
		{"bad dataset id", models.ModelRequest{Name: "m", DatasetID: "nope"}, http.StatusBadRequest},
		{"unknown dataset", models.ModelRequest{Name: "m", DatasetID: uuid.NewString()}, http.StatusNotFound},
		{"ragged rows", models.ModelRequest{Name: "m", Rows: [][]float64{{1, 2}, {1}}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/models", token, tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateModelFromRows(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	sampleSize := 8
	rec := doJSON(t, s, http.MethodPost, "/api/v1/models", token, models.ModelRequest{
		Name:        "inline",
		Rows:        clusterRows(),
		SampleSize:  &sampleSize,
		NTrees:      10,
		Threshold:   0.7,
		Standardize: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	model := decode[models.Model](t, rec)
	assert.Equal(t, 8, model.SampleSize)
	assert.Equal(t, 10, model.NTrees)
	assert.Equal(t, 0.7, model.Threshold)
	assert.Empty(t, model.DatasetID)
}

func TestImportRejectsCorruptDetector(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/models/import", token, models.ImportRequest{
		Name:     "broken",
		Detector: json.RawMessage(`{"threshold":0.6,"forest":{"sample_size":4,"n_trees":1,"trees":[]}}`),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestProjection(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s, "alice")
	ds := createDataset(t, s, token)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/projection", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	projection := decode[visualization.Projection](t, rec)
	assert.Equal(t, "pca", projection.Method)
	assert.Equal(t, 2, projection.Dimensions)
	require.Len(t, projection.Points, 33)
	assert.Nil(t, projection.Points[0].Score)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/models", token, models.ModelRequest{Name: "m", DatasetID: ds.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	model := decode[models.Model](t, rec)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/projection?model="+model.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	projection = decode[visualization.Projection](t, rec)
	require.NotNil(t, projection.Points[32].Score)
	assert.True(t, projection.Points[32].IsAnomaly)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/projection?dims=5", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/"+ds.ID+"/projection?model="+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRowScores(t *testing.T) {
	scores := []float64{0.4, 0.9, 0}
	err := &iforest.RowError{Row: 2, Err: iforest.ErrNonFinite}

	resp := rowScores(scores, 0.6, err)
	assert.Equal(t, 1, resp.Anomalies)
	assert.Equal(t, 1, resp.Rejected)
	assert.False(t, resp.Results[0].IsAnomaly)
	assert.True(t, resp.Results[1].IsAnomaly)
	assert.Nil(t, resp.Results[2].Score)
	assert.Equal(t, iforest.ErrNonFinite.Error(), resp.Results[2].Error)
}
