// Helper functions for sending standardized JSON responses.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/runner"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// RespondWithRunnerError maps an error from a runner call to a status.
func RespondWithRunnerError(w http.ResponseWriter, err error) {
	RespondWithError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var (
		thrown     *engine.ThrownError
		decoding   *engine.DecodingError
		netErr     *network.NetworkError
		cloudflare *network.CloudflareError
		empty      *network.EmptyResponseError
	)
	switch {
	case errors.Is(err, engine.ErrRunnerNotFound), errors.Is(err, network.ErrClientClosed), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrMethodNotFound):
		return http.StatusNotImplemented
	case errors.Is(err, runner.ErrNotReady):
		return http.StatusConflict
	case errors.As(err, &cloudflare), errors.As(err, &netErr), errors.As(err, &empty),
		errors.As(err, &thrown), errors.As(err, &decoding), errors.Is(err, engine.ErrInvalidReturnValue):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
