package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrClientClosed is returned for requests issued after the owning runner
// was disposed.
var ErrClientClosed = errors.New("network client is closed")

// EmptyResponseError means no HTTP response was received at all.
type EmptyResponseError struct {
	Request Request
	Err     error
}

func (e *EmptyResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no response from %s: %v", e.Request.URL, e.Err)
	}
	return fmt.Sprintf("no response from %s", e.Request.URL)
}

func (e *EmptyResponseError) Unwrap() error { return e.Err }

// NetworkError is a response that failed validation.
type NetworkError struct {
	Status   int
	Message  string
	Response *Response
}

func (e *NetworkError) Error() string {
	return e.Message
}

// CloudflareError is a 403/503 served by Cloudflare. It is kept apart from
// NetworkError so callers can offer a challenge-resolution flow.
type CloudflareError struct {
	Status        int
	ResolutionURL string
	Response      *Response
}

func (e *CloudflareError) Error() string {
	host := e.ResolutionURL
	if u, err := url.Parse(e.ResolutionURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("cloudflare protection is blocking requests to %s, open the site in a browser to resolve it", host)
}

var statusMessages = map[int]string{
	400: "Bad Request: the server could not understand the request",
	401: "Unauthorized: authentication is required",
	403: "Forbidden: access to this resource is denied",
	404: "Not Found: the requested resource does not exist",
	405: "Method Not Allowed: the server rejected the request method",
	410: "Gone: the requested resource is no longer available",
	429: "Too Many Requests: the server is rate limiting requests",
	431: "Request Header Fields Too Large: the request headers were rejected",
	500: "Internal Server Error: the server encountered an error",
	501: "Not Implemented: the server does not support this request",
	502: "Bad Gateway: the upstream server returned an invalid response",
	503: "Service Unavailable: the server is temporarily unavailable",
	504: "Gateway Timeout: the upstream server did not respond in time",
}

// StatusMessage returns the fixed message for a status code.
func StatusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// Classify turns a response that failed validation into an error.
func Classify(resp *Response) error {
	if resp == nil {
		return &EmptyResponseError{}
	}
	if (resp.Status == 403 || resp.Status == 503) && strings.EqualFold(resp.Header("Server"), "cloudflare") {
		return &CloudflareError{Status: resp.Status, ResolutionURL: resp.Request.URL, Response: resp}
	}
	return &NetworkError{Status: resp.Status, Message: StatusMessage(resp.Status), Response: resp}
}

// PluginError shapes err the way plugin code sees a failed request:
// {name, message, request, response?}.
func PluginError(err error, req Request) map[string]any {
	out := map[string]any{
		"name":    "Error",
		"message": err.Error(),
		"request": toMap(req),
	}

	var cf *CloudflareError
	var ne *NetworkError
	var ee *EmptyResponseError
	switch {
	case errors.As(err, &cf):
		out["name"] = "CloudflareError"
		out["resolutionURL"] = cf.ResolutionURL
		if cf.Response != nil {
			out["response"] = toMap(*cf.Response)
		}
	case errors.As(err, &ne):
		out["name"] = "NetworkError"
		if ne.Response != nil {
			out["response"] = toMap(*ne.Response)
		}
	case errors.As(err, &ee):
		out["name"] = "EmptyResponseError"
	}
	return out
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
