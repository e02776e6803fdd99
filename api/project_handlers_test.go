package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlforge/umlforge/internal/config"
)

func newTestServer(t *testing.T) (*Server, *MemoryStore, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			UpdateMinInterval: 100 * time.Millisecond,
			MaxNameLength:     255,
			MaxPayloadLength:  5_000_000,
			ReaperInterval:    5 * time.Minute,
			ReaperMaxAge:      time.Hour,
		},
	}
	server := NewServer(cfg, store, store)

	router := gin.New()
	server.RegisterRoutes(router)
	return server, store, router
}

func createTestProject(t *testing.T, store *MemoryStore, name string) *Project {
	t.Helper()
	project := &Project{Id: uuid.New(), Name: name}
	require.NoError(t, store.Create(context.Background(), project))
	return project
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateProject(t *testing.T) {
	_, _, router := newTestServer(t)

	w := doRequest(router, http.MethodPost, "/api/projects", CreateProjectRequest{
		Name:        "Order Service",
		PackageBase: "com.example.orders",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Order Service", created.Name)
	assert.Equal(t, "com.example.orders", created.PackageBase)
	assert.NotEqual(t, uuid.Nil, created.Id)
}

func TestCreateProject_Validation(t *testing.T) {
	_, _, router := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]string{"package_base": "com.example"}},
		{"blank name", map[string]string{"name": "   "}},
		{"name too long", map[string]string{"name": string(bytes.Repeat([]byte("x"), 256))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/projects", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetProjects(t *testing.T) {
	_, store, router := newTestServer(t)
	createTestProject(t, store, "First")
	createTestProject(t, store, "Second")

	w := doRequest(router, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var projects []Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	assert.Len(t, projects, 2)
}

func TestGetProject(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "Order Service")

	w := doRequest(router, http.MethodGet, "/api/projects/"+project.Id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, project.Id, fetched.Id)
}

func TestGetProject_NotFound(t *testing.T) {
	_, _, router := newTestServer(t)

	w := doRequest(router, http.MethodGet, "/api/projects/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProject_InvalidID(t *testing.T) {
	_, _, router := newTestServer(t)

	w := doRequest(router, http.MethodGet, "/api/projects/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteProject(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "Doomed")

	w := doRequest(router, http.MethodDelete, "/api/projects/"+project.Id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The diagram goes with the project
	_, err := store.Load(context.Background(), project.Id.String())
	assert.Equal(t, ErrNotFound, err)

	w = doRequest(router, http.MethodDelete, "/api/projects/"+project.Id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDiagram(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "Order Service")

	for _, path := range []string{
		"/api/projects/" + project.Id.String() + "/diagram",
		"/api/diagrams/" + project.Id.String(),
	} {
		w := doRequest(router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var diagram Diagram
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diagram))
		assert.Equal(t, project.Id, diagram.Id)
		assert.Equal(t, int64(0), diagram.Version)
	}
}

func TestGetProjectDiagrams(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "Order Service")

	w := doRequest(router, http.MethodGet, "/api/projects/"+project.Id.String()+"/diagrams", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var diagrams []Diagram
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diagrams))
	require.Len(t, diagrams, 1)
	assert.Equal(t, project.Id, diagrams[0].Id)
	assert.Equal(t, int64(0), diagrams[0].Version)
}

func TestGetProjectDiagrams_NotFound(t *testing.T) {
	_, _, router := newTestServer(t)

	w := doRequest(router, http.MethodGet, "/api/projects/"+uuid.New().String()+"/diagrams", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateDiagram(t *testing.T) {
	_, _, router := newTestServer(t)

	w := doRequest(router, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "p"})
	require.Equal(t, http.StatusCreated, w.Code)
	var project Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))

	nodes := `[{"id":"n1"}]`
	w = doRequest(router, http.MethodPut, "/api/projects/"+project.Id.String()+"/diagram", DiagramPatchRequest{
		Nodes:   &nodes,
		Version: 0,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated Diagram
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, nodes, updated.Nodes)
}

func TestUpdateDiagram_StaleVersionConflicts(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "p")

	nodes := `[]`
	w := doRequest(router, http.MethodPut, "/api/projects/"+project.Id.String()+"/diagram", DiagramPatchRequest{
		Nodes:   &nodes,
		Version: 5,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	stored, err := store.Load(context.Background(), project.Id.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
}

func TestUpdateDiagram_NotFound(t *testing.T) {
	_, _, router := newTestServer(t)

	nodes := `[]`
	w := doRequest(router, http.MethodPut, "/api/projects/"+uuid.New().String()+"/diagram", DiagramPatchRequest{
		Nodes: &nodes,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecognizeDiagram_DisabledWithoutRecognizer(t *testing.T) {
	_, store, router := newTestServer(t)
	project := createTestProject(t, store, "p")

	w := doRequest(router, http.MethodPost, "/api/projects/"+project.Id.String()+"/recognize", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	_, _, router := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := doRequest(router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
