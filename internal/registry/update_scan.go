package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/runner"
)

// SkipCondition excludes library entries from an update scan.
type SkipCondition string

const (
	// SkipInvalidFlag skips entries whose reading flag is not in ValidFlags.
	SkipInvalidFlag SkipCondition = "invalid_flag"
	// SkipHasUnread skips entries that still have unread chapters.
	SkipHasUnread SkipCondition = "has_unread"
	// SkipNoMarkers skips entries the user never started reading.
	SkipNoMarkers SkipCondition = "no_markers"
)

// ScanOptions configures UpdateScan.
type ScanOptions struct {
	SkipConditions []SkipCondition
	ValidFlags     []string
	// Concurrency bounds chapter fetches per runner. Values below 1 mean 1.
	Concurrency int
	// Now defaults to time.Now.
	Now func() time.Time
}

// RunnerScan is one runner's share of a scan.
type RunnerScan struct {
	RunnerID string `json:"runner_id"`
	Checked  int    `json:"checked"`
	Updates  int    `json:"updates"`
	Error    string `json:"error,omitempty"`
}

// ScanReport summarises an update scan.
type ScanReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Runners   []RunnerScan  `json:"runners"`
}

// UpdateScan checks the library entries of every active runner for new
// chapters. Runners are scanned independently; a runner that fails is
// logged, reports zero updates and persists nothing.
func (r *Registry) UpdateScan(ctx context.Context, opts ScanOptions) (ScanReport, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	start := opts.Now()
	report := ScanReport{StartedAt: start}

	if r.opts.Store == nil {
		return report, fmt.Errorf("update scan needs a store")
	}

	active, err := r.Active(ctx)
	if err != nil {
		return report, err
	}

	var candidates []*runner.Runner
	for _, run := range active {
		rec, err := r.record(run.ID())
		if err != nil {
			return report, err
		}
		if rec != nil && rec.DisableUpdateChecks {
			continue
		}
		candidates = append(candidates, run)
	}

	results := make([]RunnerScan, len(candidates))
	var wg sync.WaitGroup
	for i, run := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.scanRunner(ctx, run, opts, start)
		}()
	}
	wg.Wait()

	for _, res := range results {
		report.Total += res.Updates
	}
	report.Runners = results
	report.Duration = opts.Now().Sub(start)

	r.logger.Info().Int("updates", report.Total).Int("runners", len(results)).Dur("duration", report.Duration).Msg("Library update scan finished")
	r.notify("library_update", report)
	return report, nil
}

func (r *Registry) scanRunner(ctx context.Context, run *runner.Runner, opts ScanOptions, start time.Time) RunnerScan {
	res := RunnerScan{RunnerID: run.ID()}
	updates, err := r.checkRunner(ctx, run, opts, start)
	if err == nil {
		err = r.opts.Store.ApplyEntryUpdates(updates)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("runner", run.ID()).Str("method", "getChapters").Msg("Update scan failed for runner")
		res.Error = err.Error()
		return res
	}

	res.Checked = len(updates)
	for _, u := range updates {
		res.Updates += u.NewChapters
	}
	return res
}

func (r *Registry) checkRunner(ctx context.Context, run *runner.Runner, opts ScanOptions, start time.Time) ([]models.EntryUpdate, error) {
	ok, err := run.Invoker().MethodExists(ctx, "getChapters")
	if err != nil || !ok {
		return nil, err
	}

	entries, err := r.opts.Store.ListLibraryEntries(run.ID())
	if err != nil {
		return nil, err
	}
	entries = slices.DeleteFunc(entries, func(e *models.LibraryEntry) bool {
		return !due(e, start) || skipped(e, opts)
	})

	updates := make([]models.EntryUpdate, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			u, err := checkEntry(gctx, run, entry, opts.Now())
			if err != nil {
				return fmt.Errorf("content %s: %w", entry.ContentID, err)
			}
			updates[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

func due(e *models.LibraryEntry, start time.Time) bool {
	return e.LastChecked == nil || e.LastChecked.Before(start)
}

func skipped(e *models.LibraryEntry, opts ScanOptions) bool {
	for _, cond := range opts.SkipConditions {
		switch cond {
		case SkipInvalidFlag:
			if !slices.Contains(opts.ValidFlags, e.ReadingFlag) {
				return true
			}
		case SkipHasUnread:
			if e.UnreadCount > 0 {
				return true
			}
		case SkipNoMarkers:
			if !e.HasMarker {
				return true
			}
		}
	}
	return false
}

func checkEntry(ctx context.Context, run *runner.Runner, e *models.LibraryEntry, now time.Time) (models.EntryUpdate, error) {
	u := models.EntryUpdate{EntryID: e.ID, CheckedAt: now}

	chapters, err := run.Chapters(ctx, e.ContentID)
	if err != nil {
		return u, err
	}
	markers, err := run.ReadChapterMarkers(ctx, e.ContentID)
	if err != nil {
		return u, err
	}

	fresh := NewChapters(chapters, e, markers)
	u.NewChapters = len(fresh)
	for _, ch := range fresh {
		if ch.Number >= u.NewestNumber {
			u.NewestNumber = ch.Number
			u.NewestChapter = ch.ChapterID
		}
		if ch.Date != nil && (u.LastUpdated == nil || ch.Date.After(*u.LastUpdated)) {
			d := *ch.Date
			u.LastUpdated = &d
		}
	}
	return u, nil
}

// NewChapters filters chapters down to those the entry has not seen: a
// number past the last fetched one, not marked read on the source, and
// not dated before the entry's last known update.
func NewChapters(chapters []models.Chapter, e *models.LibraryEntry, readMarkers []string) []models.Chapter {
	var out []models.Chapter
	for _, ch := range chapters {
		if ch.Number <= e.LastFetchedNumber {
			continue
		}
		if slices.Contains(readMarkers, ch.ChapterID) {
			continue
		}
		if ch.Date != nil && e.LastUpdated != nil && ch.Date.Before(*e.LastUpdated) {
			continue
		}
		out = append(out, ch)
	}
	return out
}
