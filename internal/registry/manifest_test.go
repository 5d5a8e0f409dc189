package registry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/registry"
)

// writeBundle creates root/name with a runner.json built from manifest
// and, when source is non-empty, an index.js.
func writeBundle(t *testing.T, root, name string, manifest map[string]any, source string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, registry.ManifestFile), data, 0o644))
	if source != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(source), 0o644))
	}
	return dir
}

func manifestFor(id string) map[string]any {
	return map[string]any{"id": id, "name": id + " runner", "version": "1.0.0", "api_version": "1.0"}
}

func TestLoadManifest(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dir := writeBundle(t, t.TempDir(), "alpha", manifestFor("alpha"), "")
		m, err := registry.LoadManifest(dir)
		require.NoError(t, err)
		assert.Equal(t, "alpha", m.ID)
		assert.Equal(t, "index.js", m.EntryPoint)
		assert.Equal(t, "js", m.Environment)
	})

	tests := []struct {
		name   string
		mutate func(m map[string]any)
		errMsg string
	}{
		{"Missing id", func(m map[string]any) { delete(m, "id") }, "missing required field: id"},
		{"Missing api version", func(m map[string]any) { delete(m, "api_version") }, "missing required field: api_version"},
		{"Unknown environment", func(m map[string]any) { m["environment"] = "lua" }, "unknown environment"},
		{"Escaping entry point", func(m map[string]any) { m["entry_point"] = "../evil.js" }, "escapes the bundle"},
		{"Absolute entry point", func(m map[string]any) { m["entry_point"] = "/etc/passwd" }, "escapes the bundle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifestFor("alpha")
			tt.mutate(m)
			dir := writeBundle(t, t.TempDir(), "alpha", m, "")
			_, err := registry.LoadManifest(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("Malformed JSON", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, registry.ManifestFile), []byte("{"), 0o644))
		_, err := registry.LoadManifest(dir)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := registry.LoadManifest(t.TempDir())
		assert.ErrorContains(t, err, "failed to read")
	})
}

func TestManifestVersionChecks(t *testing.T) {
	m := &registry.Manifest{ID: "alpha", APIVersion: "1.3"}
	assert.NoError(t, registry.ValidateAPIVersion(m))

	m.APIVersion = "2.0"
	assert.ErrorContains(t, registry.ValidateAPIVersion(m), "targets API 2.0")

	m.APIVersion = "soon"
	assert.Error(t, registry.ValidateAPIVersion(m))

	assert.NoError(t, registry.CheckHostVersion(&registry.Manifest{ID: "alpha"}, "0.1.0"))
	m = &registry.Manifest{ID: "alpha", MinHostVersion: "1.2.0"}
	assert.NoError(t, registry.CheckHostVersion(m, "1.2.0"))
	assert.ErrorContains(t, registry.CheckHostVersion(m, "1.1.0"), "requires host 1.2.0")
}
