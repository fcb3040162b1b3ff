package workflow

import (
	"context"
	"sync"
)

type queueItem struct {
	jobID   string
	reclaim bool
}

// jobQueue is an unbounded FIFO. Submissions never block; workers wait in Pop.
type jobQueue struct {
	mu     sync.Mutex
	items  []queueItem
	notify chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{notify: make(chan struct{}, 1)}
}

func (q *jobQueue) Push(item queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

func (q *jobQueue) Pop(ctx context.Context) (queueItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = queueItem{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return queueItem{}, false
		}
	}
}

func (q *jobQueue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.jobID == jobID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *jobQueue) Contains(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.jobID == jobID {
			return true
		}
	}
	return false
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *jobQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
