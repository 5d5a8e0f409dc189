package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vrsandeep/mango-runner/internal/engine"
)

const (
	// APIVersion is the runner API this host implements.
	APIVersion = "1.0"
	// ManifestFile names the manifest inside a bundle.
	ManifestFile = "runner.json"
)

// Manifest is the runner.json of a bundle.
type Manifest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Description    string `json:"description,omitempty"`
	Author         string `json:"author,omitempty"`
	APIVersion     string `json:"api_version"`
	EntryPoint     string `json:"entry_point"`
	Environment    string `json:"environment"`
	BaseURL        string `json:"base_url,omitempty"`
	MinHostVersion string `json:"min_host_version,omitempty"`
}

// LoadManifest reads and validates bundleDir/runner.json.
func LoadManifest(bundleDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(bundleDir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}

	for field, value := range map[string]string{"id": m.ID, "name": m.Name, "version": m.Version, "api_version": m.APIVersion} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%s missing required field: %s", ManifestFile, field)
		}
	}

	if m.EntryPoint == "" {
		m.EntryPoint = "index.js"
	}
	if m.Environment == "" {
		m.Environment = engine.BackendJS
	}
	if m.Environment != engine.BackendJS && m.Environment != engine.BackendWebView {
		return nil, fmt.Errorf("%s: unknown environment %q", ManifestFile, m.Environment)
	}
	if filepath.IsAbs(m.EntryPoint) || strings.HasPrefix(filepath.Clean(m.EntryPoint), "..") {
		return nil, fmt.Errorf("%s: entry point %q escapes the bundle", ManifestFile, m.EntryPoint)
	}
	return &m, nil
}

// ValidateAPIVersion accepts manifests built for the same major API.
func ValidateAPIVersion(m *Manifest) error {
	ok, err := SameMajor(m.APIVersion, APIVersion)
	if err != nil {
		return fmt.Errorf("runner %s: %w", m.ID, err)
	}
	if !ok {
		return fmt.Errorf("runner %s targets API %s, host implements %s", m.ID, m.APIVersion, APIVersion)
	}
	return nil
}

// CheckHostVersion rejects bundles that need a newer host.
func CheckHostVersion(m *Manifest, hostVersion string) error {
	if m.MinHostVersion == "" {
		return nil
	}
	ok, err := AtLeast(hostVersion, m.MinHostVersion)
	if err != nil {
		return fmt.Errorf("runner %s: %w", m.ID, err)
	}
	if !ok {
		return fmt.Errorf("runner %s requires host %s or newer, running %s", m.ID, m.MinHostVersion, hostVersion)
	}
	return nil
}
