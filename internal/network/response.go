package network

import (
	"net/http"
	"strings"
)

// Response is the result of a dispatched request after response
// interception.
type Response struct {
	Data    string            `json:"data"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Request Request           `json:"request"`
}

// Header looks a header up case-insensitively.
func (r Response) Header(name string) string {
	return headerValue(r.Headers, name)
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
