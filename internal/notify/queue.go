package notify

import (
	"sync"

	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
)

// DefaultQueueDepth is the per-session MODIFIED_QUEUE depth spec.md
// §4.11 specifies; every session's queue is created with this depth.
const DefaultQueueDepth = 10

// QueueMessage is one queued notification: the variable that changed,
// its type tag, and its encoded value at the moment of the change
// (spec.md §4.11 — queued deliveries carry a value snapshot, not a
// live reference, since the variable may change again before the
// subscriber drains the queue).
type QueueMessage struct {
	Handle  store.Handle
	Type    store.Type
	Payload []byte
}

// Queue is one session's bounded MODIFIED_QUEUE mailbox. Enqueue never
// blocks the publisher: once full, the oldest-undelivered policy loses
// out to the simplest one spec.md calls for — drop the new message and
// count it.
type Queue struct {
	mu       sync.Mutex
	messages []QueueMessage
	capacity int
	dropped  uint64
}

// NewQueue builds a Queue with room for capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueDepth
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends msg, returning false (and bumping the drop counter)
// if the queue is already at capacity.
func (q *Queue) Enqueue(msg QueueMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) >= q.capacity {
		q.dropped++
		return false
	}
	q.messages = append(q.messages, msg)
	return true
}

// Dequeue pops the oldest queued message, for GET_FROM_QUEUE.
func (q *Queue) Dequeue() (QueueMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return QueueMessage{}, false
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, true
}

// Len reports how many messages are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Dropped reports how many messages this queue has discarded for
// being full, for internal/stats.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// QueueManager owns one Queue per subscribing session, created lazily
// on first subscription so sessions that never use MODIFIED_QUEUE pay
// nothing for it.
type QueueManager struct {
	mu     sync.Mutex
	queues map[session.ID]*Queue
}

// NewQueueManager builds an empty QueueManager.
func NewQueueManager() *QueueManager {
	return &QueueManager{queues: make(map[session.ID]*Queue)}
}

// Ensure returns sid's queue, creating it with the given capacity if
// this is the session's first MODIFIED_QUEUE subscription.
func (m *QueueManager) Ensure(sid session.ID, capacity int) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[sid]
	if !ok {
		q = NewQueue(capacity)
		m.queues[sid] = q
	}
	return q
}

// Get returns sid's queue, if one has been created.
func (m *QueueManager) Get(sid session.ID) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[sid]
	return q, ok
}

// Remove discards sid's queue, on CLOSE or GC reap.
func (m *QueueManager) Remove(sid session.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, sid)
}
