package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

func setupMockRepository(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repository.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"version":    "1",
			"repository": map[string]string{"name": "Test Repo", "description": "Fixtures"},
			"runners": []map[string]any{
				{"id": "demo", "name": "Demo", "version": "1.0.0", "api_version": "1.0", "download_url": "/demo.zip"},
				{"id": "future", "name": "Future", "version": "1.0.0", "api_version": "99.0", "download_url": "/future.zip"},
			},
		})
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRepositoryHandlers(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()
	remote := setupMockRepository(t)

	rr := doRequest(t, router, "POST", "/api/repositories", map[string]string{"url": remote.URL + "/broken.json"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, "POST", "/api/repositories", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, "POST", "/api/repositories", map[string]string{"url": remote.URL + "/repository.json"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	repo := decodeBody[models.Repository](t, rr)
	assert.Equal(t, "Test Repo", repo.Name)

	rr = doRequest(t, router, "GET", "/api/repositories", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Repository](t, rr), 1)

	rr = doRequest(t, router, "GET", "/api/repositories/"+fmt.Sprint(repo.ID)+"/runners", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	runners := decodeBody[[]models.RepositoryRunner](t, rr)
	require.Len(t, runners, 1)
	assert.Equal(t, "demo", runners[0].ID)

	rr = doRequest(t, router, "GET", "/api/repositories/999/runners", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, "POST", "/api/repositories/"+fmt.Sprint(repo.ID)+"/install", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, "POST", "/api/repositories/"+fmt.Sprint(repo.ID)+"/install", map[string]string{"runner_id": "future"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, "POST", "/api/repositories/check-updates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = doRequest(t, router, "DELETE", "/api/repositories/"+fmt.Sprint(repo.ID), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, router, "DELETE", "/api/repositories/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
