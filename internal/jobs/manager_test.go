package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/jobs"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/repository"
	"github.com/vrsandeep/mango-runner/internal/websocket"
)

type fakeJobContext struct {
	cfg   *config.Config
	reg   *registry.Registry
	repos *repository.Service
	ws    *websocket.Hub
}

func (f *fakeJobContext) Config() *config.Config            { return f.cfg }
func (f *fakeJobContext) Registry() *registry.Registry      { return f.reg }
func (f *fakeJobContext) Repositories() *repository.Service { return f.repos }
func (f *fakeJobContext) WsHub() *websocket.Hub             { return f.ws }
func (f *fakeJobContext) Logger() zerolog.Logger            { return zerolog.Nop() }

func newFakeContext() *fakeJobContext {
	return &fakeJobContext{cfg: &config.Config{}, ws: websocket.NewHub()}
}

func noop(context.Context, jobs.JobContext) (string, error) { return "", nil }

func TestManager_NewManager(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	mgr.Register("jobB", "Job B", noop)
	mgr.Register("jobA", "Job A", noop)
	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "jobB", statuses[1].ID)
	assert.Equal(t, "idle", statuses[0].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	var called bool
	mgr.Register("jobX", "Job X", func(context.Context, jobs.JobContext) (string, error) {
		called = true
		return "Did the thing.", nil
	})
	require.NoError(t, mgr.RunJob("jobX"))
	mgr.Wait()
	assert.True(t, called)
	statuses := mgr.GetStatus()
	assert.Equal(t, "success", statuses[0].Status)
	assert.Equal(t, "Did the thing.", statuses[0].Message)
	assert.False(t, statuses[0].EndTime.IsZero())
}

func TestManager_RunJob_Failure(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	mgr.Register("jobF", "Job F", func(context.Context, jobs.JobContext) (string, error) {
		return "", errors.New("store unavailable")
	})
	require.NoError(t, mgr.RunJob("jobF"))
	mgr.Wait()
	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Equal(t, "store unavailable", statuses[0].Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(context.Context, jobs.JobContext) (string, error) {
		<-block
		return "", nil
	})
	require.NoError(t, mgr.RunJob("jobY"))
	assert.Error(t, mgr.RunJob("jobY"))
	close(block)
	mgr.Wait()
	assert.NoError(t, mgr.RunJob("jobY"))
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	assert.Error(t, mgr.RunJob("nojob"))
}

func TestManager_RunJob_Panic(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	mgr.Register("panicJob", "Panic Job", func(context.Context, jobs.JobContext) (string, error) { panic("fail") })
	require.NoError(t, mgr.RunJob("panicJob"))
	mgr.Wait()
	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Contains(t, statuses[0].Message, "panicked")
}

func TestManager_Concurrency(t *testing.T) {
	mgr := jobs.NewManager(context.Background(), newFakeContext())
	var mu sync.Mutex
	var count int
	release := make(chan struct{})
	mgr.Register("jobC", "Job C", func(context.Context, jobs.JobContext) (string, error) {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return "", nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RunJob("jobC")
		}()
	}
	wg.Wait()
	close(release)
	mgr.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}
