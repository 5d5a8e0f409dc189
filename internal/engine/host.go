package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// ErrSecureStoreUnavailable is returned for secure values when no
// SecretBox is configured.
var ErrSecureStoreUnavailable = errors.New("secure store is not configured")

// KeyValueStore persists runner values.
type KeyValueStore interface {
	GetValue(runnerID string, kind store.ValueKind, key string) ([]byte, bool, error)
	SetValue(runnerID string, kind store.ValueKind, key string, value []byte) error
	RemoveValue(runnerID string, kind store.ValueKind, key string) error
}

// NetworkConfig is the argument of the plugin-side network.configure.
type NetworkConfig struct {
	Headers           map[string]string `json:"headers,omitempty"`
	Cookies           []network.Cookie  `json:"cookies,omitempty"`
	Timeout           float64           `json:"timeout,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	RequestsPerSecond float64           `json:"requestsPerSecond,omitempty"`
}

// HostCallError is a failed host call as handed back to plugin code.
type HostCallError struct {
	ID      string
	Payload map[string]any
	Err     error
}

func (e *HostCallError) Error() string { return e.Err.Error() }

func (e *HostCallError) Unwrap() error { return e.Err }

// PayloadJSON is the plugin-visible error object including its host id.
func (e *HostCallError) PayloadJSON() string {
	data, err := json.Marshal(e.Payload)
	if err != nil || e.Payload == nil {
		data = []byte("{}")
	}
	out, err := sjson.SetBytes(data, HostErrorKey, e.ID)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// HostOptions configures a Host.
type HostOptions struct {
	RunnerID  string
	Client    *network.Client
	Store     KeyValueStore
	Secrets   *SecretBox
	Errors    *HostErrors
	Logger    zerolog.Logger
	RetryBase time.Duration
}

// Host implements the calls plugin code makes into the host. Backends
// translate their native values to JSON and delegate here.
type Host struct {
	runnerID string
	client   *network.Client
	doer     network.Doer
	store    KeyValueStore
	secrets  *SecretBox
	errors   *HostErrors
	logger   zerolog.Logger
}

// NewHost creates the host surface for one runner.
func NewHost(opts HostOptions) *Host {
	if opts.Client == nil {
		opts.Client = network.NewClient(opts.RunnerID)
	}
	if opts.Errors == nil {
		opts.Errors = NewHostErrors(0)
	}
	return &Host{
		runnerID: opts.RunnerID,
		client:   opts.Client,
		doer:     network.NewRetryClient(opts.Client, opts.RetryBase),
		store:    opts.Store,
		secrets:  opts.Secrets,
		errors:   opts.Errors,
		logger:   opts.Logger,
	}
}

// RunnerID returns the id the host is scoped to.
func (h *Host) RunnerID() string { return h.runnerID }

// Client returns the runner's network client.
func (h *Host) Client() *network.Client { return h.client }

// Errors returns the host-error registry shared with the backend.
func (h *Host) Errors() *HostErrors { return h.errors }

// Logger returns the runner logger.
func (h *Host) Logger() zerolog.Logger { return h.logger }

// Request performs a plugin network request and returns the response
// dictionary as JSON. Failures are *HostCallError.
func (h *Host) Request(ctx context.Context, reqJSON string) (string, error) {
	req, err := Decode[network.Request](reqJSON)
	if err != nil {
		return "", h.fail(err, map[string]any{"name": "DecodingError", "message": "invalid request: " + err.Error()})
	}

	resp, err := h.doer.Do(ctx, req)
	if errors.Is(err, network.ErrClientClosed) {
		err = &RunnerNotFoundError{RunnerID: h.runnerID}
	}
	if err != nil {
		return "", h.fail(err, network.PluginError(err, req))
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return "", h.fail(err, map[string]any{"name": "Error", "message": err.Error()})
	}
	return string(data), nil
}

func (h *Host) fail(err error, payload map[string]any) *HostCallError {
	return &HostCallError{ID: h.errors.Track(err), Payload: payload, Err: err}
}

// Configure applies plugin network settings and installs its hooks.
func (h *Host) Configure(cfgJSON string, hooks network.Interceptors) error {
	cfg := NetworkConfig{}
	if !IsNull(cfgJSON) {
		decoded, err := Decode[NetworkConfig](cfgJSON)
		if err != nil {
			return err
		}
		cfg = decoded
	}

	defaults := h.client.Defaults()
	if cfg.Headers != nil {
		defaults.Headers = cfg.Headers
	}
	if cfg.Cookies != nil {
		defaults.Cookies = cfg.Cookies
	}
	if cfg.Timeout > 0 {
		defaults.Timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}
	if cfg.UserAgent != "" {
		defaults.UserAgent = cfg.UserAgent
	}
	h.client.SetDefaults(defaults)
	h.client.SetRateLimit(cfg.RequestsPerSecond)
	h.client.SetInterceptors(hooks)
	return nil
}

// StoreGet returns the JSON stored under key, or "null".
func (h *Host) StoreGet(kind, key string) (string, error) {
	k, err := parseKind(kind)
	if err != nil {
		return "", err
	}
	if h.store == nil {
		return "null", nil
	}
	value, ok, err := h.store.GetValue(h.runnerID, k, key)
	if err != nil || !ok {
		return "null", err
	}
	if k == store.KindSecure {
		if h.secrets == nil {
			return "", ErrSecureStoreUnavailable
		}
		if value, err = h.secrets.Open(value, h.runnerID+"/"+key); err != nil {
			return "", err
		}
	}
	return string(value), nil
}

// StoreGetTyped is StoreGet that yields "null" unless the stored value is
// of type typ: string, boolean, number or stringArray.
func (h *Host) StoreGetTyped(kind, key, typ string) (string, error) {
	raw, err := h.StoreGet(kind, key)
	if err != nil || raw == "null" {
		return raw, err
	}
	v := gjson.Parse(raw)
	match := false
	switch typ {
	case "string":
		match = v.Type == gjson.String
	case "boolean":
		match = v.IsBool()
	case "number":
		match = v.Type == gjson.Number
	case "stringArray":
		match = v.IsArray()
		v.ForEach(func(_, item gjson.Result) bool {
			match = match && item.Type == gjson.String
			return match
		})
	default:
		return "", fmt.Errorf("unknown value type %q", typ)
	}
	if !match {
		return "null", nil
	}
	return raw, nil
}

// StoreSet stores valueJSON under key. Setting null removes the key.
func (h *Host) StoreSet(kind, key, valueJSON string) error {
	k, err := parseKind(kind)
	if err != nil {
		return err
	}
	if IsNull(valueJSON) {
		return h.StoreRemove(kind, key)
	}
	if !gjson.Valid(valueJSON) {
		return &DecodingError{Type: "store value", Reason: "malformed JSON"}
	}
	if h.store == nil {
		return nil
	}
	value := []byte(valueJSON)
	if k == store.KindSecure {
		if h.secrets == nil {
			return ErrSecureStoreUnavailable
		}
		if value, err = h.secrets.Seal(value, h.runnerID+"/"+key); err != nil {
			return err
		}
	}
	return h.store.SetValue(h.runnerID, k, key, value)
}

// StoreRemove deletes key.
func (h *Host) StoreRemove(kind, key string) error {
	k, err := parseKind(kind)
	if err != nil {
		return err
	}
	if h.store == nil {
		return nil
	}
	return h.store.RemoveValue(h.runnerID, k, key)
}

func parseKind(kind string) (store.ValueKind, error) {
	switch store.ValueKind(kind) {
	case store.KindGeneral, "":
		return store.KindGeneral, nil
	case store.KindSecure:
		return store.KindSecure, nil
	}
	return "", fmt.Errorf("unknown store kind %q", kind)
}

// Log forwards a plugin console call.
func (h *Host) Log(level string, args ...string) {
	msg := strings.Join(args, " ")
	var ev *zerolog.Event
	switch level {
	case "debug", "trace":
		ev = h.logger.Debug()
	case "warn":
		ev = h.logger.Warn()
	case "error":
		ev = h.logger.Error()
	default:
		ev = h.logger.Info()
	}
	ev.Str("source", "plugin").Msg(msg)
}
