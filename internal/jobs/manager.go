package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/models"
)

const DefaultMaxJobs = 50

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotDone   = errors.New("job has not finished")
	ErrTooManyJobs  = errors.New("too many active jobs")
	ErrJobFinished  = errors.New("job already finished")
	ErrShuttingDown = errors.New("job manager is shutting down")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Comparer runs comparison batches.
type Comparer interface {
	Normalize(batch compare.Batch) (compare.Batch, error)
	Run(ctx context.Context, batch compare.Batch, progress compare.ProgressFunc) (*models.PriceMatrix, error)
}

// Job is a point-in-time copy of a comparison job.
type Job struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	City        models.City      `json:"city"`
	Products    []string         `json:"products"`
	Stores      []models.StoreID `json:"stores"`
	Completed   int              `json:"completed"`
	Total       int              `json:"total"`
	CachedHits  int              `json:"cached_hits"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type entry struct {
	job    Job
	batch  compare.Batch
	matrix *models.PriceMatrix
	cancel context.CancelFunc
}

// Manager keeps comparison jobs in memory. At most maxJobs jobs are
// retained; the oldest finished ones are evicted first.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	maxJobs int

	comparer Comparer
	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(comparer Comparer, maxJobs int, logger *slog.Logger) *Manager {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		entries:  make(map[string]*entry),
		maxJobs:  maxJobs,
		comparer: comparer,
		ctx:      ctx,
		stop:     stop,
		now:      time.Now,
		logger:   logger.With("component", "job_manager"),
	}
}

// CreateJob validates the batch and starts it in the background.
func (m *Manager) CreateJob(batch compare.Batch) (Job, error) {
	batch, err := m.comparer.Normalize(batch)
	if err != nil {
		return Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return Job{}, ErrShuttingDown
	}
	if !m.makeRoom() {
		return Job{}, ErrTooManyJobs
	}

	ctx, cancel := context.WithCancel(m.ctx)
	e := &entry{
		job: Job{
			ID:        uuid.New().String(),
			Status:    StatusPending,
			City:      batch.City,
			Products:  batch.Products,
			Stores:    batch.Stores,
			Total:     len(batch.Products) * len(batch.Stores),
			CreatedAt: m.now(),
		},
		batch:  batch,
		cancel: cancel,
	}
	m.entries[e.job.ID] = e
	m.order = append(m.order, e.job.ID)

	m.wg.Add(1)
	go m.run(ctx, e)

	m.logger.Info("job created", "id", e.job.ID, "products", len(batch.Products), "stores", len(batch.Stores))
	return e.job, nil
}

// makeRoom evicts finished jobs until a new one fits. Callers hold m.mu.
func (m *Manager) makeRoom() bool {
	for len(m.order) >= m.maxJobs {
		evicted := false
		for i, id := range m.order {
			if m.entries[id].job.Status.Finished() {
				delete(m.entries, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return false
		}
	}
	return true
}

func (m *Manager) GetJob(jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// ListJobs returns every retained job, newest first.
func (m *Manager) ListJobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		jobs = append(jobs, m.entries[m.order[i]].job)
	}
	return jobs
}

// Matrix returns the result of a finished job. Canceled jobs return their
// partial matrix.
func (m *Manager) Matrix(jobID string) (*models.PriceMatrix, Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[jobID]
	if !ok {
		return nil, Job{}, ErrJobNotFound
	}
	if !e.job.Status.Finished() || e.matrix == nil {
		return nil, e.job, ErrJobNotDone
	}
	return e.matrix, e.job, nil
}

// CancelJob aborts a pending or running job.
func (m *Manager) CancelJob(jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if e.job.Status.Finished() {
		return e.job, ErrJobFinished
	}

	e.cancel()
	m.logger.Info("job cancel requested", "id", jobID)
	return e.job, nil
}

// Shutdown cancels every active job and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stop()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
