package dispatch

import (
	"sync"

	"github.com/JonMunkholm/celllog/internal/ingest"
)

// eventQueue is the hand-off between the watcher goroutine and the dispatcher
// loop. push never blocks; the loop wakes on notify and drains everything
// queued so far.
type eventQueue struct {
	mu     sync.Mutex
	items  []ingest.FileEvent
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev ingest.FileEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
}

func (q *eventQueue) drain() []ingest.FileEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
