package transport

import "sync"

// Queue is the inbound backlog between the receive loop and the consumer.
// Push and Pop may be called from any goroutine.
type Queue struct {
	mu     sync.Mutex
	blocks [][]byte
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a copy of block at the tail. Empty blocks are ignored.
func (q *Queue) Push(block []byte) {
	if len(block) == 0 {
		return
	}
	b := make([]byte, len(block))
	copy(b, block)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocks = append(q.blocks, b)
}

// Pop removes and returns the oldest block.
// The boolean is false when the queue is empty.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return nil, false
	}
	b := q.blocks[0]
	q.blocks[0] = nil // release the reference held by the backing array
	q.blocks = q.blocks[1:]
	if len(q.blocks) == 0 {
		q.blocks = nil
	}
	return b, true
}

// Len returns the number of queued blocks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}
