package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vrsandeep/mango-runner/internal/testutil"
)

// setupMockImageServer simulates an image host that insists on a Referer.
func setupMockImageServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("Missing Referer header"))
			return
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("fake-image-data"))
	})
	mux.HandleFunc("/plain.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\x89PNG"))
	})
	return httptest.NewServer(mux)
}

func TestHandleProxyImage(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	images := setupMockImageServer()
	defer images.Close()

	testutil.AddFakeRunner(t, app, testutil.NewFakeInvoker("decorated").
		SetProperty("intents", map[string]any{"imageRequestHandler": true}).
		Handle("willRequestImage", func(_ context.Context, args []any) (any, error) {
			return map[string]any{
				"url":     args[0],
				"method":  "GET",
				"headers": map[string]string{"Referer": "https://reader.example/"},
			}, nil
		}))
	testutil.AddFakeRunner(t, app, testutil.NewFakeInvoker("plain"))

	proxy := func(runnerID, imageURL string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/runners/"+runnerID+"/image?url="+url.QueryEscape(imageURL), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Success - runner decorates request", func(t *testing.T) {
		rr := proxy("decorated", images.URL+"/image.jpg")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=86400")
		assert.Equal(t, "fake-image-data", rr.Body.String())
	})

	t.Run("Plain GET without image handler", func(t *testing.T) {
		rr := proxy("plain", images.URL+"/image.jpg")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("Content type inferred from extension", func(t *testing.T) {
		rr := proxy("plain", images.URL+"/plain.png?size=large")
		assert.Equal(t, http.StatusOK, rr.Code)
		// net/http sniffs a type when none is set, so only check it was passed through.
		assert.NotEmpty(t, rr.Header().Get("Content-Type"))
	})

	t.Run("Error - missing url", func(t *testing.T) {
		rr := proxy("plain", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Error - unsupported scheme", func(t *testing.T) {
		rr := proxy("plain", "file:///etc/passwd")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Error - unknown runner", func(t *testing.T) {
		rr := proxy("missing", images.URL+"/image.jpg")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
