// Package notify buffers operator alerts and delivers them from a single
// consumer. Delivery is at most once: a failed send is logged and dropped.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Queue is an unbounded FIFO. Enqueue never blocks.
type Queue struct {
	mu    sync.Mutex
	items []Entry
	wake  chan struct{}
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

func (q *Queue) Enqueue(text string) Entry {
	e := Entry{ID: uuid.NewString(), Text: text, CreatedAt: q.now().UTC()}
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Wake fires after an Enqueue; it coalesces bursts into one signal.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
