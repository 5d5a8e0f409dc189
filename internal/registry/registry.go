// Package registry owns the loaded runners. It is the only component that
// creates or disposes them, and it drives the workflows that fan out across
// every active runner: library update scans and URL routing.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/engine/cdpengine"
	"github.com/vrsandeep/mango-runner/internal/engine/gojaengine"
	"github.com/vrsandeep/mango-runner/internal/logging"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/runner"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// Notifier receives user-facing notifications ("toasts").
type Notifier interface {
	Notify(event string, payload any)
}

// PageOpener creates a browser page for a web-view runner.
type PageOpener func(ctx context.Context) (cdpengine.Page, error)

// Options configures a Registry.
type Options struct {
	Store    *store.Store
	Logger   zerolog.Logger
	Notifier Notifier

	// DevToolsURL enables web-view runners. OpenPage overrides it.
	DevToolsURL string
	OpenPage    PageOpener

	NetworkDefaults network.Defaults
	HTTPClient      *http.Client
	NetworkMetrics  *network.Metrics
	CallMetrics     *engine.Metrics
	CallTimeout     time.Duration
	Secrets         *engine.SecretBox
	HostVersion     string
}

// Entry is a loaded runner together with the bundle it came from.
type Entry struct {
	Runner   *runner.Runner
	Manifest Manifest
	Dir      string
	LoadedAt time.Time
}

// Registry is the set of loaded runners.
type Registry struct {
	opts   Options
	logger zerolog.Logger
	errors *engine.HostErrors

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.OpenPage == nil && opts.DevToolsURL != "" {
		url := opts.DevToolsURL
		opts.OpenPage = func(ctx context.Context) (cdpengine.Page, error) {
			return cdpengine.OpenPage(ctx, url)
		}
	}
	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		errors:  engine.NewHostErrors(0),
		entries: make(map[string]*Entry),
	}
}

// LoadAll loads every bundle directory under dir. A bundle that fails to
// load is logged and skipped; the joined errors are returned alongside
// the ids that loaded.
func (r *Registry) LoadAll(ctx context.Context, dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code("REGISTRY_READ_DIR").With("dir", dir).Wrap(err)
	}

	var loaded []string
	var errs []error
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		bundleDir := filepath.Join(dir, item.Name())
		if _, err := os.Stat(filepath.Join(bundleDir, ManifestFile)); err != nil {
			continue
		}
		run, err := r.Load(ctx, bundleDir)
		if err != nil {
			r.logger.Error().Err(err).Str("bundle", bundleDir).Msg("Failed to load runner")
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, run.ID())
	}
	r.logger.Info().Int("loaded", len(loaded)).Int("failed", len(errs)).Str("dir", dir).Msg("Runners loaded")
	return loaded, errors.Join(errs...)
}

// Load loads the bundle in bundleDir, replacing a runner with the same id.
func (r *Registry) Load(ctx context.Context, bundleDir string) (*runner.Runner, error) {
	m, err := LoadManifest(bundleDir)
	if err != nil {
		return nil, oops.Code("REGISTRY_MANIFEST").With("bundle", bundleDir).Wrap(err)
	}
	if err := ValidateAPIVersion(m); err != nil {
		return nil, oops.Code("REGISTRY_API_VERSION").With("runner", m.ID).Wrap(err)
	}
	if r.opts.HostVersion != "" {
		if err := CheckHostVersion(m, r.opts.HostVersion); err != nil {
			return nil, oops.Code("REGISTRY_HOST_VERSION").With("runner", m.ID).Wrap(err)
		}
	}

	source, err := os.ReadFile(filepath.Join(bundleDir, m.EntryPoint))
	if err != nil {
		return nil, oops.Code("REGISTRY_ENTRY_POINT").With("runner", m.ID).Wrap(err)
	}

	run, err := r.start(ctx, m, bundleDir, string(source))
	if err != nil {
		return nil, oops.Code("REGISTRY_START").With("runner", m.ID).With("environment", m.Environment).Wrap(err)
	}

	if info := run.Info(); info.ID != "" && info.ID != m.ID {
		run.Dispose()
		return nil, oops.Code("REGISTRY_ID_MISMATCH").With("runner", m.ID).
			Errorf("runner exports id %q but its manifest says %q", info.ID, m.ID)
	}

	if r.opts.Store != nil {
		err := r.opts.Store.RegisterRunner(models.InstalledRunner{
			ID:          m.ID,
			Name:        m.Name,
			Version:     m.Version,
			Environment: m.Environment,
			Enabled:     true,
		})
		if err != nil {
			run.Dispose()
			return nil, oops.Code("REGISTRY_PERSIST").With("runner", m.ID).Wrap(err)
		}
	}

	entry := &Entry{Runner: run, Manifest: *m, Dir: bundleDir, LoadedAt: time.Now()}
	r.mu.Lock()
	previous := r.entries[m.ID]
	r.entries[m.ID] = entry
	r.mu.Unlock()

	if previous != nil {
		if err := previous.Runner.Dispose(); err != nil {
			r.logger.Warn().Err(err).Str("runner", m.ID).Msg("Failed to dispose replaced runner")
		}
	}

	r.logger.Info().Str("runner", m.ID).Str("version", m.Version).Str("environment", m.Environment).Msg("Runner loaded")
	r.notify("runner_loaded", map[string]any{"id": m.ID, "name": m.Name, "version": m.Version})
	return run, nil
}

func (r *Registry) start(ctx context.Context, m *Manifest, bundleDir, source string) (*runner.Runner, error) {
	logger := logging.ForRunner(r.logger, m.ID)

	clientOpts := []network.Option{
		network.WithLogger(logger),
		network.WithMetrics(r.opts.NetworkMetrics),
		network.WithDefaults(r.opts.NetworkDefaults),
	}
	if r.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, network.WithHTTPClient(r.opts.HTTPClient))
	}
	client := network.NewClient(m.ID, clientOpts...)

	host := engine.NewHost(engine.HostOptions{
		RunnerID: m.ID,
		Client:   client,
		Store:    r.kvStore(),
		Secrets:  r.opts.Secrets,
		Errors:   r.errors,
		Logger:   logger,
	})

	var inv engine.Invoker
	switch m.Environment {
	case engine.BackendWebView:
		if r.opts.OpenPage == nil {
			client.Close()
			return nil, errors.New("web-view runners need browser.devtools_url")
		}
		page, err := r.opts.OpenPage(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		cdpInv, err := cdpengine.New(ctx, page, cdpengine.Options{ID: m.ID, Source: source, BaseURL: m.BaseURL, Host: host})
		if err != nil {
			return nil, err
		}
		inv = cdpInv
	default:
		jsInv, err := gojaengine.New(ctx, gojaengine.Options{
			ID:       m.ID,
			Filename: filepath.Join(bundleDir, m.EntryPoint),
			Source:   source,
			Host:     host,
		})
		if err != nil {
			return nil, err
		}
		inv = jsInv
	}

	run := runner.New(r.opts.CallMetrics.Instrument(inv), runner.Options{
		Client:      client,
		Logger:      logger,
		CallTimeout: r.opts.CallTimeout,
	})
	if err := run.Load(ctx); err != nil {
		run.Dispose()
		return nil, err
	}
	return run, nil
}

// kvStore avoids handing the host a typed nil interface.
func (r *Registry) kvStore() engine.KeyValueStore {
	if r.opts.Store == nil {
		return nil
	}
	return r.opts.Store
}

// Add registers an already loaded runner. It exists for callers that
// build runners themselves, such as tests and embedders.
func (r *Registry) Add(run *runner.Runner, m Manifest) {
	r.mu.Lock()
	previous := r.entries[run.ID()]
	r.entries[run.ID()] = &Entry{Runner: run, Manifest: m, LoadedAt: time.Now()}
	r.mu.Unlock()
	if previous != nil {
		previous.Runner.Dispose()
	}
}

// Get returns a loaded runner.
func (r *Registry) Get(id string) (*runner.Runner, error) {
	entry, err := r.Entry(id)
	if err != nil {
		return nil, err
	}
	return entry.Runner, nil
}

// Entry returns a loaded runner with its bundle metadata.
func (r *Registry) Entry(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, &engine.RunnerNotFoundError{RunnerID: id}
	}
	return entry, nil
}

// List returns every loaded runner ordered by id.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out
}

// Active returns the loaded runners the user has enabled. Runners the
// store has never seen count as enabled.
func (r *Registry) Active(ctx context.Context) ([]*runner.Runner, error) {
	var out []*runner.Runner
	for _, entry := range r.List() {
		enabled, err := r.enabled(entry.Runner.ID())
		if err != nil {
			return nil, err
		}
		if enabled {
			out = append(out, entry.Runner)
		}
	}
	return out, nil
}

func (r *Registry) enabled(id string) (bool, error) {
	rec, err := r.record(id)
	if err != nil || rec == nil {
		return true, err
	}
	return rec.Enabled, nil
}

func (r *Registry) record(id string) (*models.InstalledRunner, error) {
	if r.opts.Store == nil {
		return nil, nil
	}
	rec, err := r.opts.Store.GetRunner(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("REGISTRY_RUNNER_RECORD").With("runner", id).Wrap(err)
	}
	return rec, nil
}

// Dispose unloads one runner.
func (r *Registry) Dispose(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return &engine.RunnerNotFoundError{RunnerID: id}
	}
	r.logger.Info().Str("runner", id).Msg("Runner disposed")
	return entry.Runner.Dispose()
}

// Close disposes every runner.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var errs []error
	for id, entry := range entries {
		if err := entry.Runner.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("runner %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) notify(event string, payload any) {
	if r.opts.Notifier != nil {
		r.opts.Notifier.Notify(event, payload)
	}
}
