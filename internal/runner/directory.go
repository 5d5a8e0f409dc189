package runner

import (
	"context"
	"fmt"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
)

// DirectoryConfig returns the filter and sort options of a directory
// page. Results are cached per key for the runner's lifetime; key "" is
// the default directory.
func (r *Runner) DirectoryConfig(ctx context.Context, key string) (models.DirectoryConfig, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return models.DirectoryConfig{}, err
	}
	defer cancel()

	if cached, ok := r.configs.Load(key); ok {
		return cached.(models.DirectoryConfig), nil
	}

	var args []any
	if key != "" {
		args = append(args, key)
	}
	cfg, err := engine.CallOptionalDecodable[models.DirectoryConfig](ctx, r.inv, "getDirectoryConfig", args...)
	if err != nil {
		return models.DirectoryConfig{}, err
	}
	out := models.DirectoryConfig{}
	if cfg != nil {
		out = *cfg
	}
	r.configs.Store(key, out)
	return out, nil
}

// Directory fetches one page of a directory listing.
func (r *Runner) Directory(ctx context.Context, req models.DirectoryRequest) (models.PagedResult[models.Highlight], error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Page < 1 {
		return models.PagedResult[models.Highlight]{}, fmt.Errorf("invalid directory page %d", req.Page)
	}

	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return models.PagedResult[models.Highlight]{}, err
	}
	defer cancel()

	return engine.CallDecodable[models.PagedResult[models.Highlight]](ctx, r.inv, "getDirectory", req)
}

// Paginate walks directory pages starting at req.Page until the runner
// reports the last page or returns an empty one. fn may stop the walk by
// returning an error, which Paginate returns.
func (r *Runner) Paginate(ctx context.Context, req models.DirectoryRequest, fn func(models.PagedResult[models.Highlight]) error) error {
	if req.Page == 0 {
		req.Page = 1
	}
	for {
		page, err := r.Directory(ctx, req)
		if err != nil {
			return fmt.Errorf("page %d: %w", req.Page, err)
		}
		if err := fn(page); err != nil {
			return err
		}
		if page.EndOfStream() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		req.Page++
	}
}
