// Package network performs outbound HTTP on behalf of runners. Every call
// passes through the runner's interception hooks, validation and error
// classification before the result is handed back to plugin code.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cookie is a name/value pair sent with a request.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is one outbound HTTP call as plugins describe it. Params values
// are either a string or a []string once normalized.
type Request struct {
	URL        string            `json:"url"`
	Method     string            `json:"method,omitempty"`
	Params     map[string]any    `json:"params,omitempty"`
	Body       any               `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Cookies    []Cookie          `json:"cookies,omitempty"`
	Timeout    float64           `json:"timeout,omitempty"`
	MaxRetries int               `json:"maxRetries,omitempty"`
}

type ctxKey int

const (
	timeoutKey ctxKey = iota
	maxRetriesKey
)

// TimeoutDuration converts the seconds-valued Timeout field.
func (r Request) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout * float64(time.Second))
}

// Normalized returns a copy with method upper-cased and params reduced to
// strings and string slices.
func (r Request) Normalized() Request {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.Method = strings.ToUpper(r.Method)
	r.Params = normalizeParams(r.Params)
	return r
}

func normalizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case nil:
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			values := make([]string, 0, len(val))
			for _, item := range val {
				if item != nil {
					values = append(values, paramString(item))
				}
			}
			out[k] = values
		default:
			out[k] = paramString(val)
		}
	}
	return out
}

func paramString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// ToHTTP materializes the request. Params merge into the URL query: a
// single-element slice is written as `key[]=v`, longer slices as repeated
// `key`. Cookies travel in the Cookie header; timeout and retry count ride
// on the request context.
func (r Request) ToHTTP(ctx context.Context) (*http.Request, error) {
	r = r.Normalized()

	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", r.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid request url %q: missing scheme or host", r.URL)
	}

	query := u.Query()
	for k, v := range r.Params {
		switch val := v.(type) {
		case string:
			query.Add(k, val)
		case []string:
			if len(val) == 1 {
				query.Add(k+"[]", val[0])
				continue
			}
			for _, item := range val {
				query.Add(k, item)
			}
		}
	}
	u.RawQuery = query.Encode()

	body, contentType, err := encodeBody(r.Body, r.Headers)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, timeoutKey, r.Timeout)
	ctx = context.WithValue(ctx, maxRetriesKey, r.MaxRetries)

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if len(r.Cookies) > 0 {
		pairs := make([]string, 0, len(r.Cookies)+1)
		if existing := req.Header.Get("Cookie"); existing != "" {
			pairs = append(pairs, existing)
		}
		for _, c := range r.Cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return req, nil
}

func encodeBody(body any, headers map[string]string) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	}

	if isForm(headerValue(headers, "Content-Type")) {
		if m, ok := body.(map[string]any); ok {
			form := url.Values{}
			for k, v := range m {
				form.Set(k, paramString(v))
			}
			return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// RequestFromHTTP converts an http.Request back into its plugin form.
// Query parameters are lifted out of the URL and grouped: `key[]` and
// repeated keys become slices.
func RequestFromHTTP(req *http.Request) (Request, error) {
	u := *req.URL
	query := u.Query()
	u.RawQuery = ""

	r := Request{
		URL:    u.String(),
		Method: req.Method,
	}

	if len(query) > 0 {
		r.Params = make(map[string]any, len(query))
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values := query[k]
			name, isArray := strings.CutSuffix(k, "[]")
			if existing, ok := r.Params[name]; ok {
				r.Params[name] = append(toSlice(existing), values...)
				continue
			}
			if isArray || len(values) > 1 {
				r.Params[name] = append([]string(nil), values...)
			} else {
				r.Params[name] = values[0]
			}
		}
	}

	for _, c := range req.Cookies() {
		r.Cookies = append(r.Cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	for k, v := range req.Header {
		if k == "Cookie" || len(v) == 0 {
			continue
		}
		if r.Headers == nil {
			r.Headers = make(map[string]string, len(req.Header))
		}
		r.Headers[k] = strings.Join(v, ", ")
	}

	if req.Body != nil && req.Body != http.NoBody {
		data, err := readBody(req)
		if err != nil {
			return Request{}, err
		}
		r.Body = decodeBody(data, req.Header.Get("Content-Type"))
	}

	if t, ok := req.Context().Value(timeoutKey).(float64); ok {
		r.Timeout = t
	}
	if n, ok := req.Context().Value(maxRetriesKey).(int); ok {
		r.MaxRetries = n
	}
	return r, nil
}

func readBody(req *http.Request) ([]byte, error) {
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func decodeBody(data []byte, contentType string) any {
	switch {
	case strings.Contains(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	case isForm(contentType):
		if form, err := url.ParseQuery(string(data)); err == nil {
			m := make(map[string]any, len(form))
			for k := range form {
				m[k] = form.Get(k)
			}
			return m
		}
	}
	return string(data)
}

func toSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case string:
		return []string{val}
	}
	return nil
}

func isForm(contentType string) bool {
	return strings.Contains(contentType, "application/x-www-form-urlencoded")
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
