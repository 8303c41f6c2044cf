package summary

import "sync"

// workQueue holds directories waiting to be listed. It closes itself once
// every pushed directory has been marked done, so workers blocked in pop
// wake up and exit when the tree is drained.
type workQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	pending int
	closed  bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push adds a directory. It is a no-op on a closed queue.
func (q *workQueue) push(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, path)
	q.pending++
	q.cond.Signal()
}

// pop blocks until a directory is available or the queue is closed.
func (q *workQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return "", false
	}
	last := len(q.items) - 1
	path := q.items[last]
	q.items = q.items[:last]
	return path, true
}

// done marks one popped directory as finished. Children must be pushed
// before done is called for their parent.
func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// close wakes every waiting worker and rejects further work.
func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
