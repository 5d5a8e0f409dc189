package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func storyFake(id string) *testutil.FakeInvoker {
	return testutil.NewFakeInvoker(id).
		SetProperty("intents", map[string]any{"preferenceMenuBuilder": true}).
		Return("getContent", map[string]any{"title": "Story " + id, "cover": "https://img.example/c.jpg"}).
		Return("getChapters", []map[string]any{
			{"chapterId": "c1", "number": 1, "index": 0},
			{"chapterId": "c2", "number": 2, "index": 1},
		}).
		Return("getChapterData", map[string]any{"pages": []map[string]any{{"url": "https://img.example/1.jpg"}}}).
		Handle("getDirectory", func(_ context.Context, args []any) (any, error) {
			req := args[0].(map[string]any)
			return map[string]any{
				"results":    []map[string]any{{"id": "s1", "title": "Query " + req["query"].(string)}},
				"page":       req["page"],
				"isLastPage": true,
			}, nil
		}).
		Return("getDirectoryConfig", map[string]any{"sort": map[string]any{"options": []map[string]any{{"id": "new", "title": "Newest"}}}}).
		Return("generatePreferenceMenu", []map[string]any{{"id": "general", "children": []map[string]any{}}}).
		Return("updateSourcePreferences", nil)
}

func TestGeneralHandlers(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	rr := doRequest(t, router, "GET", "/api/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "version")

	rr = doRequest(t, router, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = doRequest(t, router, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRunnerHandlers(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	fake := storyFake("alpha")
	testutil.AddFakeRunner(t, app, fake)

	t.Run("list and get", func(t *testing.T) {
		rr := doRequest(t, router, "GET", "/api/runners", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		views := decodeBody[[]map[string]any](t, rr)
		require.Len(t, views, 1)
		assert.Equal(t, "alpha", views[0]["id"])
		assert.Equal(t, "ready", views[0]["state"])
		assert.Equal(t, true, views[0]["enabled"])

		rr = doRequest(t, router, "GET", "/api/runners/alpha", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = doRequest(t, router, "GET", "/api/runners/missing", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("directory", func(t *testing.T) {
		rr := doRequest(t, router, "GET", "/api/runners/alpha/directory?query=one&page=2", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decodeBody[models.PagedResult[models.Highlight]](t, rr)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "Query one", page.Results[0].Title)
		assert.Equal(t, 2, page.Page)
		assert.True(t, page.IsLastPage)

		rr = doRequest(t, router, "GET", "/api/runners/alpha/directory?page=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doRequest(t, router, "GET", "/api/runners/alpha/directory/config", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Newest")
	})

	t.Run("content chapters and pages", func(t *testing.T) {
		rr := doRequest(t, router, "GET", "/api/runners/alpha/content/x1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Story alpha", decodeBody[models.Content](t, rr).Title)

		rr = doRequest(t, router, "GET", "/api/runners/alpha/content/x1/chapters", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		chapters := decodeBody[[]models.Chapter](t, rr)
		require.Len(t, chapters, 2)
		assert.Equal(t, "c2", chapters[1].ChapterID)

		rr = doRequest(t, router, "GET", "/api/runners/alpha/content/x1/chapters/c1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decodeBody[models.ChapterData](t, rr).Pages, 1)
	})

	t.Run("preferences", func(t *testing.T) {
		rr := doRequest(t, router, "GET", "/api/runners/alpha/preferences", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "general")

		rr = doRequest(t, router, "PUT", "/api/runners/alpha/preferences/lang", map[string]any{"value": "en"})
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Contains(t, fake.Calls(), "updateSourcePreferences")
	})

	t.Run("flags require an installed record", func(t *testing.T) {
		rr := doRequest(t, router, "PUT", "/api/runners/alpha/enabled", map[string]any{"enabled": false})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		require.NoError(t, app.Store().RegisterRunner(models.InstalledRunner{ID: "alpha", Name: "alpha", Version: "1.0.0", Environment: "js", Enabled: true}))

		rr = doRequest(t, router, "PUT", "/api/runners/alpha/enabled", map[string]any{"enabled": false})
		assert.Equal(t, http.StatusOK, rr.Code)
		rr = doRequest(t, router, "PUT", "/api/runners/alpha/update-checks", map[string]any{"disabled": true})
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = doRequest(t, router, "GET", "/api/runners/alpha", nil)
		view := decodeBody[map[string]any](t, rr)
		assert.Equal(t, false, view["enabled"])
		assert.Equal(t, true, view["disable_update_checks"])

		rr = doRequest(t, router, "PUT", "/api/runners/alpha/enabled", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestRunnerErrorStatuses(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	testutil.AddFakeRunner(t, app, testutil.NewFakeInvoker("broken").
		Handle("getContent", func(context.Context, []any) (any, error) {
			return nil, errors.New("boom")
		}).
		Return("getChapters", testutil.RawJSON(`{"not":"a list"}`)))

	rr := doRequest(t, router, "GET", "/api/runners/broken/content/x", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = doRequest(t, router, "GET", "/api/runners/broken/content/x/chapters", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = doRequest(t, router, "GET", "/api/runners/broken/content/x/chapters/c1", nil)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestRouteHandler(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	testutil.AddFakeRunner(t, app, testutil.NewFakeInvoker("alpha").Handle("handleURL", func(_ context.Context, args []any) (any, error) {
		if args[0] == "https://alpha.example/title/7" {
			return map[string]any{"contentId": "a7"}, nil
		}
		return nil, nil
	}))

	rr := doRequest(t, router, "POST", "/api/route", map[string]string{"url": "https://alpha.example/title/7"})
	require.Equal(t, http.StatusOK, rr.Code)
	route := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "direct", route["kind"])

	rr = doRequest(t, router, "POST", "/api/route", map[string]string{"url": "https://nowhere.example/"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "unresolved", decodeBody[map[string]any](t, rr)["kind"])

	rr = doRequest(t, router, "POST", "/api/route", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
