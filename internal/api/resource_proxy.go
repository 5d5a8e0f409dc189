package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vrsandeep/mango-runner/internal/network"
)

// handleProxyImage fetches an image on behalf of a runner. The runner may
// decorate the request (Referer, cookies, signed URLs) and the fetch goes
// through its own network client, so its rate limit and interceptors apply.
//
// Query parameters:
//   - url: (required) The image URL
func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}

	imageURL := r.URL.Query().Get("url")
	if imageURL == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing 'url' parameter")
		return
	}
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid URL")
		return
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		RespondWithError(w, http.StatusBadRequest, "Only http and https URLs are allowed")
		return
	}

	req, err := run.WillRequestImage(r.Context(), imageURL)
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}

	client := run.Client()
	if client == nil {
		client = network.NewClient(run.ID())
	}
	resp, err := client.Do(r.Context(), req)
	if err != nil {
		logger := s.app.Logger()
		logger.Debug().Err(err).Str("runner", run.ID()).Str("url", imageURL).Msg("Image proxy request failed")
		RespondWithRunnerError(w, err)
		return
	}

	contentType := resp.Header("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" {
		contentType = inferContentType(imageURL)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(resp.Data))
}

// inferContentType guesses an image type from the URL extension.
func inferContentType(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		rawURL = u.Path
	}
	lowerURL := strings.ToLower(rawURL)
	switch {
	case strings.HasSuffix(lowerURL, ".jpg") || strings.HasSuffix(lowerURL, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lowerURL, ".png"):
		return "image/png"
	case strings.HasSuffix(lowerURL, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lowerURL, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lowerURL, ".avif"):
		return "image/avif"
	case strings.HasSuffix(lowerURL, ".svg"):
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
