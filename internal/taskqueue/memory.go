package taskqueue

import (
	"context"
	"fmt"
	"sync"
)

// Task is a single enqueued job as recorded by InMemoryQueue.
type Task struct {
	URL     string
	Payload any
}

// InMemoryQueue is a Queue test double that records every enqueued task
// in order.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
}

// NewInMemoryQueue returns an empty InMemoryQueue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, url string, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, Task{URL: url, Payload: payload})
	return fmt.Sprintf("fake-task-%d", len(q.tasks)), nil
}

// Tasks returns a snapshot of every task enqueued so far.
func (q *InMemoryQueue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}
