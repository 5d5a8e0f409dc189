package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vrsandeep/mango-runner/internal/engine"
)

// RawJSON is returned verbatim by a FakeInvoker method instead of being
// marshalled, so tests can hand back malformed output.
type RawJSON string

// FakeMethod receives the call arguments after a JSON round trip.
type FakeMethod func(ctx context.Context, args []any) (any, error)

// FakeInvoker is an in-memory engine.Invoker for runner and registry tests.
type FakeInvoker struct {
	RunnerID    string
	BackendName string

	mu         sync.Mutex
	methods    map[string]FakeMethod
	properties map[string]any
	calls      []string
	closed     bool
}

// NewFakeInvoker returns a fake runner exporting info with the given id.
func NewFakeInvoker(id string) *FakeInvoker {
	return &FakeInvoker{
		RunnerID:    id,
		BackendName: engine.BackendJS,
		methods:     make(map[string]FakeMethod),
		properties: map[string]any{
			"info": map[string]any{"id": id, "name": id, "version": 1},
		},
	}
}

// Handle registers a method.
func (f *FakeInvoker) Handle(name string, fn FakeMethod) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[name] = fn
	return f
}

// Return registers a method that always yields v.
func (f *FakeInvoker) Return(name string, v any) *FakeInvoker {
	return f.Handle(name, func(context.Context, []any) (any, error) { return v, nil })
}

// SetProperty sets a non-function export. A nil value removes it.
func (f *FakeInvoker) SetProperty(name string, v any) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v == nil {
		delete(f.properties, name)
	} else {
		f.properties[name] = v
	}
	return f
}

// Calls returns the names of the methods called so far, in order.
func (f *FakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *FakeInvoker) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeInvoker) ID() string      { return f.RunnerID }
func (f *FakeInvoker) Backend() string { return f.BackendName }

func (f *FakeInvoker) MethodExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, &engine.RunnerNotFoundError{RunnerID: f.RunnerID}
	}
	_, ok := f.methods[name]
	return ok, nil
}

func (f *FakeInvoker) Property(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", &engine.RunnerNotFoundError{RunnerID: f.RunnerID}
	}
	v, ok := f.properties[name]
	if !ok {
		return "", nil
	}
	return encode(v)
}

func (f *FakeInvoker) Call(ctx context.Context, method string, args ...any) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", &engine.RunnerNotFoundError{RunnerID: f.RunnerID}
	}
	fn, ok := f.methods[method]
	f.calls = append(f.calls, method)
	f.mu.Unlock()
	if !ok {
		return "", &engine.MethodNotFoundError{RunnerID: f.RunnerID, Method: method}
	}

	argsJSON, err := engine.EncodeArgs(args...)
	if err != nil {
		return "", err
	}
	var decoded []any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return "", err
	}

	out, err := fn(ctx, decoded)
	if err != nil {
		return "", err
	}
	return encode(out)
}

func (f *FakeInvoker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func encode(v any) (string, error) {
	if raw, ok := v.(RawJSON); ok {
		return string(raw), nil
	}
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
