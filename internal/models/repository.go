package models

import "time"

// RepositoryRunner is a runner bundle listed in a repository index.
type RepositoryRunner struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Description    string `json:"description,omitempty"`
	Author         string `json:"author,omitempty"`
	APIVersion     string `json:"api_version"`
	Environment    string `json:"environment"`
	DownloadURL    string `json:"download_url"`
	MinHostVersion string `json:"min_host_version,omitempty"`
	NSFW           bool   `json:"nsfw,omitempty"`
}

// RepositoryIndex is the repository.json document a repository serves.
type RepositoryIndex struct {
	Version    string             `json:"version"`
	Repository RepositoryInfo     `json:"repository"`
	Runners    []RepositoryRunner `json:"runners"`
}

// RepositoryInfo contains repository metadata.
type RepositoryInfo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Repository is a repository the user has added.
type Repository struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// InstalledRunner is the persisted host-side record of a runner.
type InstalledRunner struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Version             string    `json:"version"`
	Environment         string    `json:"environment"`
	Enabled             bool      `json:"enabled"`
	InstallSource       string    `json:"install_source,omitempty"`
	DisableUpdateChecks bool      `json:"disable_update_checks"`
	InstalledAt         time.Time `json:"installed_at"`
}

// RunnerUpdateInfo reports whether a newer bundle is available.
type RunnerUpdateInfo struct {
	RunnerID         string `json:"runner_id"`
	Name             string `json:"name"`
	InstalledVersion string `json:"installed_version"`
	AvailableVersion string `json:"available_version"`
	RepositoryURL    string `json:"repository_url"`
	HasUpdate        bool   `json:"has_update"`
}
