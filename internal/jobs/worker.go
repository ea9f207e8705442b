package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/models"
)

func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer e.cancel()

	m.update(e, func(j *Job) {
		now := m.now()
		j.Status = StatusRunning
		j.StartedAt = &now
	})
	m.logger.Info("processing job", "id", e.job.ID)

	matrix, err := m.comparer.Run(ctx, e.batch, func(p compare.Progress) {
		m.update(e, func(j *Job) {
			j.Completed = p.Completed
			if p.Cached {
				j.CachedHits++
			}
		})
	})

	m.finish(e, matrix, err)
}

func (m *Manager) finish(e *entry, matrix *models.PriceMatrix, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e.job.CompletedAt = &now
	e.matrix = matrix

	switch {
	case err == nil:
		e.job.Status = StatusCompleted
		m.logger.Info("job completed", "id", e.job.ID, "unavailable", len(matrix.Unavailable()))
	case errors.Is(err, context.Canceled) && matrix != nil:
		e.job.Status = StatusCanceled
		e.job.Error = err.Error()
		m.logger.Info("job canceled", "id", e.job.ID, "completed", e.job.Completed, "total", e.job.Total)
	default:
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
		m.logger.Error("job failed", "id", e.job.ID, "error", err)
	}
}

func (m *Manager) update(e *entry, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&e.job)
}
