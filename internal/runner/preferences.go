package runner

import (
	"context"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
)

// Preferences builds the runner's settings menu. nil means the runner
// exposes no settings.
func (r *Runner) Preferences(ctx context.Context) ([]models.PreferenceGroup, error) {
	if !r.intents.PreferenceMenuBuilder {
		return nil, nil
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	groups, err := engine.CallOptionalDecodable[[]models.PreferenceGroup](ctx, r.inv, "generatePreferenceMenu")
	if err != nil || groups == nil {
		return nil, err
	}
	return *groups, nil
}

// SetPreference tells the runner a setting changed. Best effort: the
// runner's failure is logged only.
func (r *Runner) SetPreference(ctx context.Context, key string, value any) {
	r.notify(ctx, "updateSourcePreferences", key, value)
}
