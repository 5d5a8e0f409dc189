// Package runner presents the method surface of one loaded plugin on top
// of an engine.Invoker, independent of the backend running it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/network"
)

// ErrNotReady is returned for calls made before Load completed.
var ErrNotReady = errors.New("runner is not ready")

// State is the lifecycle position of a Runner.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options configures a Runner.
type Options struct {
	// Client is the network client the plugin's host calls go through.
	Client *network.Client
	Logger zerolog.Logger
	// CallTimeout bounds each plugin call. Zero leaves calls unbounded.
	CallTimeout time.Duration
}

// Runner is one loaded plugin.
type Runner struct {
	inv     engine.Invoker
	client  *network.Client
	logger  zerolog.Logger
	timeout time.Duration

	state   atomic.Int32
	info    models.RunnerInfo
	intents models.RunnerIntents

	// directory configs keyed by config id, "" for the default page
	configs sync.Map
}

// New wraps inv. The runner is unusable until Load succeeds.
func New(inv engine.Invoker, opts Options) *Runner {
	return &Runner{
		inv:     inv,
		client:  opts.Client,
		logger:  opts.Logger,
		timeout: opts.CallTimeout,
	}
}

// Load reads info and intents, then fires onSourceLoaded.
func (r *Runner) Load(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateUnloaded), int32(StateLoading)) {
		return fmt.Errorf("runner %s cannot be loaded from state %s", r.inv.ID(), r.State())
	}

	ctx, cancel := r.callContext(ctx)
	defer cancel()

	info, err := engine.ReadProperty[models.RunnerInfo](ctx, r.inv, "info")
	if err != nil {
		r.state.CompareAndSwap(int32(StateLoading), int32(StateUnloaded))
		return fmt.Errorf("failed to read runner info: %w", err)
	}
	intents, err := engine.ReadOptionalProperty[models.RunnerIntents](ctx, r.inv, "intents")
	if err != nil {
		r.state.CompareAndSwap(int32(StateLoading), int32(StateUnloaded))
		return fmt.Errorf("failed to read runner intents: %w", err)
	}
	r.info = info
	if intents != nil {
		r.intents = *intents
	}

	if !r.state.CompareAndSwap(int32(StateLoading), int32(StateReady)) {
		return &engine.RunnerNotFoundError{RunnerID: r.inv.ID()}
	}
	r.hook(ctx, "onSourceLoaded")
	return nil
}

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

// ID is the runner id the invoker was created with.
func (r *Runner) ID() string { return r.inv.ID() }

// Backend names the engine executing the runner.
func (r *Runner) Backend() string { return r.inv.Backend() }

// Info returns a copy of the info block read at load time.
func (r *Runner) Info() models.RunnerInfo {
	info := r.info
	info.SupportedLanguages = append([]string(nil), r.info.SupportedLanguages...)
	return info
}

// Intents returns the capabilities declared at load time.
func (r *Runner) Intents() models.RunnerIntents { return r.intents }

// Client returns the runner's network client.
func (r *Runner) Client() *network.Client { return r.client }

// Invoker exposes the backend for engine-specific probes.
func (r *Runner) Invoker() engine.Invoker { return r.inv }

// Dispose closes the execution context. Later calls fail with
// RunnerNotFound.
func (r *Runner) Dispose() error {
	if State(r.state.Swap(int32(StateDisposed))) == StateDisposed {
		return nil
	}
	if r.client != nil {
		r.client.Close()
	}
	return r.inv.Close()
}

// begin checks the state and derives the per-call context.
func (r *Runner) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	switch r.State() {
	case StateReady:
	case StateDisposed:
		return nil, nil, &engine.RunnerNotFoundError{RunnerID: r.inv.ID()}
	default:
		return nil, nil, ErrNotReady
	}
	ctx, cancel := r.callContext(ctx)
	return ctx, cancel, nil
}

func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// hook calls an optional notification. Failures are logged, never returned.
func (r *Runner) hook(ctx context.Context, method string, args ...any) {
	if err := engine.CallOptionalVoid(ctx, r.inv, method, args...); err != nil {
		r.logger.Warn().Err(err).Str("runner", r.inv.ID()).Str("method", method).Msg("Runner hook failed")
	}
}

// notify runs hook if the runner is ready.
func (r *Runner) notify(ctx context.Context, method string, args ...any) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Str("runner", r.inv.ID()).Str("method", method).Msg("Skipping runner hook")
		return
	}
	defer cancel()
	r.hook(ctx, method, args...)
}

func (r *Runner) unsupported(method string) error {
	return &engine.MethodNotFoundError{RunnerID: r.inv.ID(), Method: method}
}
