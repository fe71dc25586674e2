package hashledger

import "sync"

// workQueue hands out each path exactly once. It is filled at construction and never refilled.
type workQueue struct {
	mu    sync.Mutex
	paths []string
	next  int
}

func newWorkQueue(paths []string) *workQueue {
	return &workQueue{paths: paths}
}

// pop returns the next path, or false once the queue is drained
func (q *workQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next >= len(q.paths) {
		return "", false
	}
	p := q.paths[q.next]
	q.next++
	return p, true
}

// remaining returns the number of paths not yet handed out
func (q *workQueue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths) - q.next
}
