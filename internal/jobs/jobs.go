package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/registry"
)

const (
	// LibraryUpdateJob scans library entries for new chapters.
	LibraryUpdateJob = "library-update"
	// RunnerUpdateJob checks repositories for newer runner bundles.
	RunnerUpdateJob = "runner-update-check"
)

// RegisterDefaultJobs registers the jobs every host runs.
func RegisterDefaultJobs(jm *JobManager) {
	jm.Register(LibraryUpdateJob, "Library Update", RunLibraryUpdate)
	jm.Register(RunnerUpdateJob, "Runner Update Check", RunRunnerUpdateCheck)
}

// ScanOptions translates the updates config section.
func ScanOptions(cfg *config.Config) registry.ScanOptions {
	opts := registry.ScanOptions{
		ValidFlags:  cfg.Updates.ValidFlags,
		Concurrency: cfg.Updates.Concurrency,
	}
	for _, cond := range cfg.Updates.SkipConditions {
		opts.SkipConditions = append(opts.SkipConditions, registry.SkipCondition(cond))
	}
	return opts
}

// RunLibraryUpdate runs an update scan across every active runner.
func RunLibraryUpdate(ctx context.Context, app JobContext) (string, error) {
	report, err := app.Registry().UpdateScan(ctx, ScanOptions(app.Config()))
	if err != nil {
		return "", err
	}
	failed := 0
	for _, r := range report.Runners {
		if r.Error != "" {
			failed++
		}
	}
	msg := fmt.Sprintf("Found %d new chapters across %d runners.", report.Total, len(report.Runners))
	if failed > 0 {
		msg += fmt.Sprintf(" %d runners failed.", failed)
	}
	return msg, nil
}

// RunRunnerUpdateCheck reports runners with newer versions available.
func RunRunnerUpdateCheck(ctx context.Context, app JobContext) (string, error) {
	repos := app.Repositories()
	if repos == nil {
		return "No repository service configured.", nil
	}
	updates, err := repos.CheckForUpdates(ctx)
	if err != nil {
		return "", err
	}
	if len(updates) > 0 {
		app.WsHub().Notify("runner_updates", updates)
	}
	return fmt.Sprintf("%d runner updates available.", len(updates)), nil
}

// StartJobs starts the background job scheduler. The caller stops it.
func StartJobs(app JobContext, jm *JobManager) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	scheduleJob(s, app, jm, LibraryUpdateJob, app.Config().Updates.Interval)

	logger := app.Logger()
	logger.Info().Msg("Starting background job scheduler")
	s.StartAsync()
	return s
}

func scheduleJob(s *gocron.Scheduler, app JobContext, jm *JobManager, id string, minutes int) {
	logger := app.Logger()
	if minutes <= 0 {
		logger.Info().Str("job", id).Msg("Interval is 0, scheduled run is disabled")
		return
	}

	logger.Info().Str("job", id).Int("minutes", minutes).Msg("Scheduling job")
	_, err := s.Every(minutes).Minutes().WaitForSchedule().Do(func() {
		// Submitting through the manager keeps scheduled and manual runs
		// from overlapping.
		if err := jm.RunJob(id); err != nil {
			logger.Warn().Err(err).Str("job", id).Msg("Scheduled job could not start")
		}
	})
	if err != nil {
		logger.Error().Err(err).Str("job", id).Msg("Error scheduling job")
	}
}
