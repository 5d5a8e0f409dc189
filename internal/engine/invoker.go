// Package engine is the backend-neutral half of runner execution: the
// JSON marshalling contract, the Invoker interface both backends satisfy,
// the typed call helpers and the host-call surface injected into plugins.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend names.
const (
	BackendJS      = "js"
	BackendWebView = "webview"
)

// Invoker calls methods on one loaded runner object. Every value crossing
// the boundary is JSON text produced inside the engine.
type Invoker interface {
	ID() string
	Backend() string
	// MethodExists reports whether the runner object has a callable member.
	MethodExists(ctx context.Context, name string) (bool, error)
	// Property returns the JSON of a non-function member, "" when absent.
	Property(ctx context.Context, name string) (string, error)
	// Call invokes method, awaits a returned promise and returns the JSON
	// of the outcome. A missing method is a *MethodNotFoundError.
	Call(ctx context.Context, method string, args ...any) (string, error)
	Close() error
}

// CallOptionalVoid calls a hook the runner may not implement. An absent
// method succeeds without touching the script.
func CallOptionalVoid(ctx context.Context, inv Invoker, method string, args ...any) error {
	ok, err := inv.MethodExists(ctx, method)
	if err != nil || !ok {
		return err
	}
	_, err = inv.Call(ctx, method, args...)
	return err
}

// CallDecodable calls a required method and decodes its result into T.
func CallDecodable[T any](ctx context.Context, inv Invoker, method string, args ...any) (T, error) {
	var zero T
	raw, err := callRequired(ctx, inv, method, args...)
	if err != nil {
		return zero, err
	}
	v, err := Decode[T](raw)
	if err != nil {
		return zero, &InvalidReturnValueError{RunnerID: inv.ID(), Method: method, Err: err}
	}
	return v, nil
}

// CallOptionalDecodable is CallDecodable for nullable results: a null
// return yields (nil, nil).
func CallOptionalDecodable[T any](ctx context.Context, inv Invoker, method string, args ...any) (*T, error) {
	raw, err := callRequired(ctx, inv, method, args...)
	if err != nil {
		return nil, err
	}
	v, err := DecodeOptional[T](raw)
	if err != nil {
		return nil, &InvalidReturnValueError{RunnerID: inv.ID(), Method: method, Err: err}
	}
	return v, nil
}

// CallObject calls a required method and builds T through its ParseValue.
func CallObject[T any, PT interface {
	*T
	ValueParser
}](ctx context.Context, inv Invoker, method string, args ...any) (T, error) {
	var out T
	raw, err := callRequired(ctx, inv, method, args...)
	if err != nil {
		return out, err
	}
	value, err := Decode[any](raw)
	if err != nil {
		return out, &InvalidReturnValueError{RunnerID: inv.ID(), Method: method, Err: err}
	}
	if err := PT(&out).ParseValue(value); err != nil {
		return out, &InvalidReturnValueError{
			RunnerID: inv.ID(),
			Method:   method,
			Err:      &DecodingError{Type: "object", Reason: err.Error(), Err: err},
		}
	}
	return out, nil
}

// ReadProperty decodes a required property of the runner object.
func ReadProperty[T any](ctx context.Context, inv Invoker, name string) (T, error) {
	var zero T
	raw, err := inv.Property(ctx, name)
	if err != nil {
		return zero, err
	}
	if IsNull(raw) {
		return zero, &MethodNotFoundError{RunnerID: inv.ID(), Method: name}
	}
	v, err := Decode[T](raw)
	if err != nil {
		return zero, &InvalidReturnValueError{RunnerID: inv.ID(), Method: name, Err: err}
	}
	return v, nil
}

// ReadOptionalProperty decodes a property that may be absent.
func ReadOptionalProperty[T any](ctx context.Context, inv Invoker, name string) (*T, error) {
	raw, err := inv.Property(ctx, name)
	if err != nil {
		return nil, err
	}
	v, err := DecodeOptional[T](raw)
	if err != nil {
		return nil, &InvalidReturnValueError{RunnerID: inv.ID(), Method: name, Err: err}
	}
	return v, nil
}

func callRequired(ctx context.Context, inv Invoker, method string, args ...any) (string, error) {
	ok, err := inv.MethodExists(ctx, method)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &MethodNotFoundError{RunnerID: inv.ID(), Method: method}
	}
	return inv.Call(ctx, method, args...)
}

// Metrics counts runner method calls by outcome.
type Metrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the call metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mango_runner_calls_total",
				Help: "Total number of runner method calls by outcome",
			},
			[]string{"runner", "method", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mango_runner_call_duration_seconds",
				Help:    "Duration of runner method calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"runner"},
		),
	}
	reg.MustRegister(m.CallsTotal)
	reg.MustRegister(m.CallDuration)
	return m
}

// Instrument wraps inv so its calls are counted. A nil Metrics returns
// inv unchanged.
func (m *Metrics) Instrument(inv Invoker) Invoker {
	if m == nil {
		return inv
	}
	return &instrumented{Invoker: inv, metrics: m}
}

type instrumented struct {
	Invoker
	metrics *Metrics
}

func (i *instrumented) Call(ctx context.Context, method string, args ...any) (string, error) {
	start := time.Now()
	raw, err := i.Invoker.Call(ctx, method, args...)
	i.metrics.CallDuration.WithLabelValues(i.ID()).Observe(time.Since(start).Seconds())
	i.metrics.CallsTotal.WithLabelValues(i.ID(), method, callOutcome(err)).Inc()
	return raw, err
}

func callOutcome(err error) string {
	var thrown *ThrownError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &thrown):
		return "thrown"
	case errors.Is(err, ErrMethodNotFound):
		return "method_not_found"
	case errors.Is(err, ErrRunnerNotFound):
		return "runner_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
