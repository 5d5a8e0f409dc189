package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads bundles when files under the runner directory change.
// Events are debounced per bundle so a copy in progress reloads once.
type Watcher struct {
	registry *Registry
	root     string

	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	changed       map[string]bool
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once

	// OnReload, when set, is called after each bundle is reloaded or disposed.
	OnReload func(bundleDir string, err error)
}

// NewWatcher watches root for bundle changes on behalf of reg.
func NewWatcher(reg *Registry, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		registry:      reg,
		root:          filepath.Clean(root),
		changed:       make(map[string]bool),
		debounceDelay: debounce,
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching. Reloads use ctx.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(w.root); err != nil {
		watcher.Close()
		return err
	}
	items, err := os.ReadDir(w.root)
	if err != nil {
		watcher.Close()
		return err
	}
	for _, item := range items {
		if item.IsDir() {
			if err := watcher.Add(filepath.Join(w.root, item.Name())); err != nil {
				watcher.Close()
				return err
			}
		}
	}
	w.watcher = watcher

	w.registry.logger.Info().Str("dir", w.root).Msg("Runner watcher started")
	go w.processEvents(ctx)
	return nil
}

// Stop stops watching. Pending reloads are dropped.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.registry.logger.Warn().Err(err).Msg("Runner watcher error")
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	bundle := w.bundleFor(event.Name)
	if bundle == "" {
		return
	}

	if event.Has(fsnotify.Create) && event.Name == bundle {
		if info, err := os.Stat(bundle); err == nil && info.IsDir() {
			w.watcher.Add(bundle)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.changed[bundle] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() { w.flush(ctx) })
}

// bundleFor maps a path below root to its bundle directory.
func (w *Watcher) bundleFor(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first := strings.Split(rel, string(filepath.Separator))[0]
	if strings.HasPrefix(first, ".") {
		return ""
	}
	return filepath.Join(w.root, first)
}

func (w *Watcher) flush(ctx context.Context) {
	select {
	case <-w.stopChan:
		return
	default:
	}

	w.mu.Lock()
	bundles := make([]string, 0, len(w.changed))
	for b := range w.changed {
		bundles = append(bundles, b)
	}
	w.changed = make(map[string]bool)
	w.mu.Unlock()

	for _, bundle := range bundles {
		err := w.reload(ctx, bundle)
		if err != nil {
			w.registry.logger.Error().Err(err).Str("bundle", bundle).Msg("Runner reload failed")
		}
		if w.OnReload != nil {
			w.OnReload(bundle, err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context, bundle string) error {
	if _, err := os.Stat(filepath.Join(bundle, ManifestFile)); err != nil {
		for _, entry := range w.registry.List() {
			if entry.Dir == bundle {
				return w.registry.Dispose(entry.Manifest.ID)
			}
		}
		return nil
	}
	_, err := w.registry.Load(ctx, bundle)
	return err
}
