// Shared app and server setup for API and integration tests.

package testutil

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vrsandeep/mango-runner/internal/api"
	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/core"
	"github.com/vrsandeep/mango-runner/internal/logging"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/runner"
)

// SetupTestApp builds a core.App on an in-memory database with an empty
// runners directory. The app is closed when the test ends.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	database := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.Runners.Path = t.TempDir()
	cfg.Runners.CallTimeout = 5
	cfg.SecureStore.Key = "test-key"
	cfg.Updates.Concurrency = 2

	app, err := core.NewWithDB(cfg, database, logging.Nop())
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t)
	return api.NewServer(app), app
}

// AddFakeRunner loads fake and registers it with the app's registry.
func AddFakeRunner(t *testing.T, app *core.App, fake *FakeInvoker) *runner.Runner {
	t.Helper()
	run := runner.New(fake, runner.Options{Logger: zerolog.Nop()})
	if err := run.Load(context.Background()); err != nil {
		t.Fatalf("Failed to load fake runner %s: %v", fake.RunnerID, err)
	}
	app.Registry().Add(run, registry.Manifest{ID: fake.RunnerID, Name: fake.RunnerID, Version: "1.0.0"})
	return run
}
