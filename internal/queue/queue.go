package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/fleetwatch/pkg/models"
)

// Queue is a named FIFO of remediation items with per-key retry
// bookkeeping. Dequeue is at-most-once: an item removed from the head
// is never handed out again.
type Queue struct {
	name      string
	items     []models.QueueItem
	processed int
	retries   map[string]int
	mu        sync.Mutex
}

// New creates a new remediation queue
func New(name string) *Queue {
	return &Queue{
		name:    name,
		retries: make(map[string]int),
	}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.name
}

// Enqueue appends an item to the tail, stamping it with a generated
// id and the enqueue time. The id is for tracing only.
func (q *Queue) Enqueue(item models.QueueItem) models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	item.ID = fmt.Sprintf("%s-%d-%s", q.name, now.UnixNano(), uuid.New().String()[:8])
	item.EnqueuedAt = now

	q.items = append(q.items, item)
	return item
}

// Dequeue removes and returns the head item, incrementing the
// processed counter. The second return value is false when the queue
// is empty; an empty dequeue is not an error.
func (q *Queue) Dequeue() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.QueueItem{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	q.processed++
	return item, true
}

// Peek returns the head item without removing it
func (q *Queue) Peek() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.QueueItem{}, false
	}
	return q.items[0], true
}

// Size returns the current pending count
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Retry records a retry attempt for key. It returns true and
// increments the stored count when the pre-increment count is below
// maxAttempts; otherwise it returns false without incrementing, so a
// key's count never exceeds the cap once Retry reports ineligibility.
// Counts are never decremented or pruned.
func (q *Queue) Retry(key string, maxAttempts int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retries[key] >= maxAttempts {
		return false
	}
	q.retries[key]++
	return true
}

// RetryCount returns the attempt count for key, 0 if unseen
func (q *Queue) RetryCount(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retries[key]
}

// Stats returns aggregate statistics. RetryCount is the number of
// distinct keys that have ever been retried, not total attempts.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return models.QueueStats{
		Name:       q.name,
		Pending:    len(q.items),
		Processed:  q.processed,
		RetryCount: len(q.retries),
	}
}

// Clear resets pending items, the processed counter, and all retry counts
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.processed = 0
	q.retries = make(map[string]int)
}
