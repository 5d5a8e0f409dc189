package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/repository"
	"github.com/vrsandeep/mango-runner/internal/websocket"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned while another job is running.
	ErrJobRunning = errors.New("a job is already running")
)

// JobContext provides the dependencies a job needs.
// The core.App struct implements this interface.
type JobContext interface {
	Config() *config.Config
	Registry() *registry.Registry
	Repositories() *repository.Service
	WsHub() *websocket.Hub
	Logger() zerolog.Logger
}

// JobTask is the body of a job. Its error becomes the job's final message.
type JobTask func(ctx context.Context, app JobContext) (string, error)

// JobStatus is the last known state of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type job struct {
	name string
	task JobTask
}

// JobManager runs registered jobs one at a time.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]job
	status  map[string]*JobStatus
	running bool
	appCtx  JobContext
	ctx     context.Context
	wg      sync.WaitGroup
}

// NewManager creates a manager whose jobs run with ctx until it is cancelled.
func NewManager(ctx context.Context, appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:   make(map[string]job),
		status: make(map[string]*JobStatus),
		appCtx: appCtx,
		ctx:    ctx,
	}
}

// Register adds a job under id.
func (jm *JobManager) Register(id, name string, task JobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = job{name: name, task: task}
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a job in the background. Only one job runs at a time.
func (jm *JobManager) RunJob(id string) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return ErrJobRunning
	}
	j, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	jm.running = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	snapshot := *status
	jm.mu.Unlock()

	logger := jm.appCtx.Logger()
	logger.Info().Str("job", id).Msg("Starting job")
	jm.appCtx.WsHub().Notify("job_status", snapshot)

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		var (
			message string
			err     error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}

			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = "failed"
				status.Message = err.Error()
			} else {
				status.Status = "success"
				status.Message = message
				if message == "" {
					status.Message = "Job completed successfully."
				}
			}
			jm.running = false
			final := *status
			jm.mu.Unlock()

			if err != nil {
				logger.Error().Err(err).Str("job", id).Msg("Job failed")
			} else {
				logger.Info().Str("job", id).Dur("duration", final.EndTime.Sub(final.StartTime)).Msg("Finished job")
			}
			jm.appCtx.WsHub().Notify("job_status", final)
		}()

		message, err = j.task(jm.ctx, jm.appCtx)
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

// GetStatus returns a copy of every job's status ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
