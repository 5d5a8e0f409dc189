// Package repository installs runner bundles from remote repositories.
// A repository serves a repository.json index; each listed runner points
// at an archive holding its runner.json and entry script.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/runner"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// maxDownload caps index and archive downloads.
const maxDownload = 64 << 20

// Loader is the part of the registry the service drives.
type Loader interface {
	Load(ctx context.Context, bundleDir string) (*runner.Runner, error)
	Dispose(id string) error
}

// Options configures a Service.
type Options struct {
	Store       *store.Store
	Loader      Loader
	RunnersDir  string
	HostVersion string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Service handles repository operations.
type Service struct {
	store       *store.Store
	loader      Loader
	dir         string
	hostVersion string
	client      *http.Client
	logger      zerolog.Logger
}

// NewService creates a repository service.
func NewService(opts Options) *Service {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		store:       opts.Store,
		loader:      opts.Loader,
		dir:         opts.RunnersDir,
		hostVersion: opts.HostVersion,
		client:      client,
		logger:      opts.Logger,
	}
}

// FetchIndex downloads and parses a repository index.
func (s *Service) FetchIndex(ctx context.Context, url string) (*models.RepositoryIndex, error) {
	data, err := s.download(ctx, url)
	if err != nil {
		return nil, oops.Code("REPOSITORY_FETCH").With("url", url).Wrap(err)
	}
	var index models.RepositoryIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, oops.Code("REPOSITORY_FETCH").With("url", url).Wrapf(err, "failed to parse repository JSON")
	}
	return &index, nil
}

// AddRepository validates url by fetching its index and stores it.
func (s *Service) AddRepository(ctx context.Context, url string) (*models.Repository, error) {
	index, err := s.FetchIndex(ctx, url)
	if err != nil {
		return nil, err
	}
	name := index.Repository.Name
	if name == "" {
		name = url
	}
	return s.store.CreateRepository(url, name, index.Repository.Description)
}

// Available lists the runners of a repository this host can run.
func (s *Service) Available(ctx context.Context, repositoryID int64) ([]models.RepositoryRunner, error) {
	repo, err := s.store.GetRepository(repositoryID)
	if err != nil {
		return nil, err
	}
	index, err := s.FetchIndex(ctx, repo.URL)
	if err != nil {
		return nil, err
	}

	compatible := make([]models.RepositoryRunner, 0, len(index.Runners))
	for _, entry := range index.Runners {
		if s.compatible(entry) == nil {
			compatible = append(compatible, entry)
		}
	}
	return compatible, nil
}

func (s *Service) compatible(entry models.RepositoryRunner) error {
	m := &registry.Manifest{ID: entry.ID, APIVersion: entry.APIVersion, MinHostVersion: entry.MinHostVersion}
	if err := registry.ValidateAPIVersion(m); err != nil {
		return err
	}
	if s.hostVersion != "" {
		return registry.CheckHostVersion(m, s.hostVersion)
	}
	return nil
}

// Install downloads a runner from a repository, replaces any installed
// copy and loads it.
func (s *Service) Install(ctx context.Context, repositoryID int64, runnerID string) (*runner.Runner, error) {
	repo, err := s.store.GetRepository(repositoryID)
	if err != nil {
		return nil, err
	}
	index, err := s.FetchIndex(ctx, repo.URL)
	if err != nil {
		return nil, err
	}

	var entry *models.RepositoryRunner
	for i := range index.Runners {
		if index.Runners[i].ID == runnerID {
			entry = &index.Runners[i]
			break
		}
	}
	if entry == nil {
		return nil, oops.Code("REPOSITORY_INSTALL").With("runner", runnerID).Errorf("runner %s not found in repository", runnerID)
	}
	if err := s.compatible(*entry); err != nil {
		return nil, oops.Code("REPOSITORY_INSTALL").With("runner", runnerID).Wrapf(err, "runner is incompatible")
	}

	archive, err := s.download(ctx, entry.DownloadURL)
	if err != nil {
		return nil, oops.Code("REPOSITORY_DOWNLOAD").With("runner", runnerID).With("url", entry.DownloadURL).Wrap(err)
	}

	bundleDir, err := s.unpack(ctx, runnerID, entry.DownloadURL, archive)
	if err != nil {
		return nil, oops.Code("REPOSITORY_INSTALL").With("runner", runnerID).Wrap(err)
	}

	run, err := s.loader.Load(ctx, bundleDir)
	if err != nil {
		os.RemoveAll(bundleDir)
		return nil, oops.Code("REPOSITORY_INSTALL").With("runner", runnerID).Wrapf(err, "failed to load runner")
	}

	err = s.store.RegisterRunner(models.InstalledRunner{
		ID:            runnerID,
		Name:          run.Info().Name,
		Version:       entry.Version,
		Environment:   entry.Environment,
		InstallSource: repo.URL,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("runner", runnerID).Msg("Failed to record runner install source")
	}

	s.logger.Info().Str("runner", runnerID).Str("version", entry.Version).Str("repository", repo.URL).Msg("Runner installed")
	return run, nil
}

// unpack extracts archive next to the runner directory and swaps it into
// place as dir/<runnerID>.
func (s *Service) unpack(ctx context.Context, runnerID, name string, archive []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(s.dir, ".install-"+runnerID+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if err := Extract(ctx, name, archive, staging); err != nil {
		return "", err
	}
	root, err := bundleRoot(staging)
	if err != nil {
		return "", err
	}
	m, err := registry.LoadManifest(root)
	if err != nil {
		return "", err
	}
	if m.ID != runnerID {
		return "", fmt.Errorf("archive contains runner %q, expected %q", m.ID, runnerID)
	}

	target := filepath.Join(s.dir, runnerID)
	if err := os.RemoveAll(target); err != nil {
		return "", err
	}
	if err := os.Rename(root, target); err != nil {
		return "", err
	}
	return target, nil
}

// bundleRoot finds runner.json at the top of dir or inside its only
// subdirectory, the two layouts archive tools produce.
func bundleRoot(dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, registry.ManifestFile)); err == nil {
		return dir, nil
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(items) == 1 && items[0].IsDir() {
		nested := filepath.Join(dir, items[0].Name())
		if _, err := os.Stat(filepath.Join(nested, registry.ManifestFile)); err == nil {
			return nested, nil
		}
	}
	return "", fmt.Errorf("archive has no %s", registry.ManifestFile)
}

// CheckForUpdates compares installed runners against every repository.
// Repositories that cannot be fetched are logged and skipped.
func (s *Service) CheckForUpdates(ctx context.Context) ([]models.RunnerUpdateInfo, error) {
	repositories, err := s.store.ListRepositories()
	if err != nil {
		return nil, err
	}
	installed, err := s.store.ListRunners()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.InstalledRunner, len(installed))
	for _, r := range installed {
		byID[r.ID] = r
	}

	updates := make([]models.RunnerUpdateInfo, 0)
	for _, repo := range repositories {
		index, err := s.FetchIndex(ctx, repo.URL)
		if err != nil {
			s.logger.Warn().Err(err).Str("repository", repo.URL).Msg("Failed to fetch repository")
			continue
		}
		for _, entry := range index.Runners {
			current, ok := byID[entry.ID]
			if !ok || current.DisableUpdateChecks {
				continue
			}
			if current.InstallSource != "" && current.InstallSource != repo.URL {
				continue
			}
			if s.compatible(entry) != nil {
				continue
			}
			newer, err := registry.IsNewer(current.Version, entry.Version)
			if err != nil || !newer {
				continue
			}
			updates = append(updates, models.RunnerUpdateInfo{
				RunnerID:         entry.ID,
				Name:             entry.Name,
				InstalledVersion: current.Version,
				AvailableVersion: entry.Version,
				RepositoryURL:    repo.URL,
				HasUpdate:        true,
			})
		}
	}
	return updates, nil
}

// Uninstall unloads a runner and removes its bundle and stored data.
func (s *Service) Uninstall(ctx context.Context, runnerID string) error {
	if err := s.loader.Dispose(runnerID); err != nil && !errors.Is(err, engine.ErrRunnerNotFound) {
		s.logger.Warn().Err(err).Str("runner", runnerID).Msg("Failed to dispose runner")
	}
	if err := os.RemoveAll(filepath.Join(s.dir, runnerID)); err != nil {
		return oops.Code("REPOSITORY_UNINSTALL").With("runner", runnerID).Wrap(err)
	}
	if err := s.store.DeleteRunner(runnerID); err != nil {
		return err
	}
	s.logger.Info().Str("runner", runnerID).Msg("Runner uninstalled")
	return nil
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("%s exceeds %d bytes", url, maxDownload)
	}
	return data, nil
}
