package crawler

import (
	"sync"

	"github.com/nao1215/surfacefuzz/internal/model"
)

// task is one claimed URL waiting to be fetched.
type task struct {
	url string
	via model.DiscoverySource
}

// worklist is the FIFO shared by crawl workers. pending counts tasks queued
// or in progress; the crawl is over when it reaches zero.
//
// Design decision: We use a mutex-guarded slice with a sync.Cond rather
// than a channel because:
// 1. An empty queue does not mean the crawl is over; a busy worker may
//    still push the links of the page it is fetching
// 2. Termination needs "queue empty and nobody busy" checked atomically,
//    which a channel cannot express without a second counter and a race
// 3. The queue is unbounded, so a page with many links never blocks the
//    worker that found them
type worklist struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	pending int
	closed  bool
}

func newWorklist() *worklist {
	w := &worklist{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worklist) push(t task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.queue = append(w.queue, t)
	w.pending++
	w.cond.Signal()
}

// pop blocks until a task is available. It returns false once every task
// is done or the list was closed.
func (w *worklist) pop() (task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && w.pending > 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed || len(w.queue) == 0 {
		return task{}, false
	}
	t := w.queue[0]
	w.queue = w.queue[1:]
	return t, true
}

// done marks a popped task as finished.
func (w *worklist) done() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending--
	if w.pending == 0 {
		w.cond.Broadcast()
	}
}

// close wakes every waiting worker and drops queued tasks.
func (w *worklist) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.queue = nil
	w.cond.Broadcast()
}
