package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one (product, store) cell of a comparison batch.
type Task struct {
	ID        string
	Product   string
	Store     models.StoreID
	City      models.City
	Priority  int
	CreatedAt time.Time
}

func (t *Task) Key() models.CacheKey {
	return models.CacheKey{Product: t.Product, Store: t.Store, City: t.City}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue hands out tasks by descending priority, FIFO within a
// priority. Pop blocks until a task arrives, the queue is closed and
// drained, or ctx is done.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  []*Task
	closed bool
	// changed is closed and replaced on every push or close.
	changed chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:   make([]*Task, 0),
		changed: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.insert(task)
	q.notify()
	return nil
}

func (q *InMemoryQueue) PushBatch(tasks []*Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for _, task := range tasks {
		q.insert(task)
	}
	q.notify()
	return nil
}

func (q *InMemoryQueue) insert(task *Task) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	i := len(q.tasks)
	for i > 0 && q.tasks[i-1].Priority < task.Priority {
		i--
	}
	q.tasks = append(q.tasks, nil)
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = task
}

func (q *InMemoryQueue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryPop never blocks.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, nil
}

// Drain removes and returns every queued task.
func (q *InMemoryQueue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.tasks
	q.tasks = make([]*Task, 0)
	return out
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notify()
	return nil
}
