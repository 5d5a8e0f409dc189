package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestFromURLGroupsRepeatedKeys(t *testing.T) {
	req := Request{URL: "https://x/y?tag=a&tag=b", Method: "GET"}

	httpReq, err := req.ToHTTP(context.Background())
	require.NoError(t, err)

	back, err := RequestFromHTTP(httpReq)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y", back.URL)
	assert.Equal(t, map[string]any{"tag": []string{"a", "b"}}, back.Params)
}

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"single value", map[string]any{"q": "one piece"}},
		{"single element array", map[string]any{"genre": []string{"action"}}},
		{"repeated array", map[string]any{"tag": []string{"a", "b", "c"}}},
		{"mixed", map[string]any{"page": "2", "tag": []string{"a"}, "lang": []string{"en", "ja"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{
				URL:        "https://example.com/search",
				Method:     "POST",
				Params:     tt.params,
				Headers:    map[string]string{"Referer": "https://example.com"},
				Cookies:    []Cookie{{Name: "session", Value: "abc"}},
				Timeout:    12,
				MaxRetries: 2,
			}

			httpReq, err := req.ToHTTP(context.Background())
			require.NoError(t, err)
			back, err := RequestFromHTTP(httpReq)
			require.NoError(t, err)

			assert.Equal(t, req.Normalized(), back)
		})
	}
}

func TestRequestSingleElementArrayEncoding(t *testing.T) {
	req := Request{URL: "https://example.com", Params: map[string]any{"tag": []any{"a"}, "n": 3.0, "nsfw": false}}

	httpReq, err := req.ToHTTP(context.Background())
	require.NoError(t, err)
	q := httpReq.URL.Query()
	assert.Equal(t, []string{"a"}, q["tag[]"])
	assert.Equal(t, "3", q.Get("n"))
	assert.Equal(t, "false", q.Get("nsfw"))
	assert.Equal(t, http.MethodGet, httpReq.Method)
}

func TestRequestBodies(t *testing.T) {
	t.Run("raw string", func(t *testing.T) {
		httpReq, err := Request{URL: "https://example.com", Method: "post", Body: "raw=1"}.ToHTTP(context.Background())
		require.NoError(t, err)
		data, _ := io.ReadAll(httpReq.Body)
		assert.Equal(t, "raw=1", string(data))
		assert.Equal(t, "POST", httpReq.Method)
	})

	t.Run("structured json", func(t *testing.T) {
		req := Request{URL: "https://example.com", Method: "POST", Body: map[string]any{"a": 1.0}}
		httpReq, err := req.ToHTTP(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "application/json", httpReq.Header.Get("Content-Type"))

		back, err := RequestFromHTTP(httpReq)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1.0}, back.Body)
	})

	t.Run("form", func(t *testing.T) {
		req := Request{
			URL:     "https://example.com",
			Method:  "POST",
			Headers: map[string]string{"content-type": "application/x-www-form-urlencoded"},
			Body:    map[string]any{"user": "me"},
		}
		httpReq, err := req.ToHTTP(context.Background())
		require.NoError(t, err)
		data, _ := io.ReadAll(httpReq.Body)
		assert.Equal(t, "user=me", string(data))
	})
}

func TestRequestInvalidURL(t *testing.T) {
	_, err := Request{URL: "not a url"}.ToHTTP(context.Background())
	assert.Error(t, err)
}

func TestPluginErrorShape(t *testing.T) {
	req := Request{URL: "https://example.com/a", Method: "GET"}
	resp := &Response{Status: 404, Request: req}

	shaped := PluginError(Classify(resp), req)
	assert.Equal(t, "NetworkError", shaped["name"])
	assert.Contains(t, shaped["message"], "Not Found")
	assert.Equal(t, "https://example.com/a", shaped["request"].(map[string]any)["url"])
	assert.Equal(t, 404.0, shaped["response"].(map[string]any)["status"])

	shaped = PluginError(&EmptyResponseError{Request: req}, req)
	assert.Equal(t, "EmptyResponseError", shaped["name"])
	assert.NotContains(t, shaped, "response")

	shaped = PluginError(errors.New("boom"), req)
	assert.Equal(t, "Error", shaped["name"])
}
