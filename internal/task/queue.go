package task

import (
	"sort"
	"sync"
	"time"

	"github.com/willowmere/gardener-core/internal/actuator"
)

// Queue holds pending tasks, one slot per coalesce key. The garden is
// small (tens of plants), so a map plus a scan beats a heap here and
// keeps supersession O(1).
// All methods are safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items map[string]*Task
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*Task)}
}

// Push enqueues a task. If a task with the same coalesce key is already
// pending it is replaced, and the displaced task is returned so the
// caller can report it superseded.
func (q *Queue) Push(t *Task) (superseded *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := t.CoalesceKey()
	superseded = q.items[key]
	q.items[key] = t
	return superseded
}

// PopReady removes and returns the highest-priority pending task of the
// given actuator class, dropping and returning any tasks of that class
// whose deadline has passed. Ties break on enqueue time, oldest first.
// Returns nil when nothing of the class is pending.
func (q *Queue) PopReady(class actuator.Class, now time.Time) (next *Task, expired []*Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for key, t := range q.items {
		if t.Class() != class {
			continue
		}
		if t.Expired(now) {
			expired = append(expired, t)
			delete(q.items, key)
			continue
		}
		if next == nil ||
			t.Priority > next.Priority ||
			(t.Priority == next.Priority && t.CreatedAt.Before(next.CreatedAt)) {
			next = t
		}
	}
	if next != nil {
		delete(q.items, next.CoalesceKey())
	}
	return next, expired
}

// Clear removes every pending task and returns them. Used when the
// emergency stop engages.
func (q *Queue) Clear() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := make([]*Task, 0, len(q.items))
	for _, t := range q.items {
		cleared = append(cleared, t)
	}
	q.items = make(map[string]*Task)
	return cleared
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a snapshot of pending tasks, highest priority first.
func (q *Queue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.items))
	for _, t := range q.items {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
