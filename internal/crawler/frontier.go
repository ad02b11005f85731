package crawler

import (
	"sync"
)

// Frontier is the shared crawl queue and visited set. A URL is marked visited
// when a worker takes it, under the same lock that enforces the page budget,
// so no two workers fetch the same URL and the visited set never exceeds
// maxPages.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []string
	queued   map[string]struct{}
	visited  map[string]struct{}
	maxPages int
	inFlight int
	stopped  bool
}

// NewFrontier creates a frontier that hands out at most maxPages URLs
func NewFrontier(maxPages int) *Frontier {
	f := &Frontier{
		queued:   make(map[string]struct{}),
		visited:  make(map[string]struct{}),
		maxPages: maxPages,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues a URL unless it was already queued or the frontier is stopped.
// Returns true if added.
func (f *Frontier) Push(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || len(f.visited) >= f.maxPages {
		return false
	}
	if _, ok := f.queued[u]; ok {
		return false
	}

	f.queued[u] = struct{}{}
	f.items = append(f.items, u)
	f.cond.Signal()
	return true
}

// Next hands the next unvisited URL to a worker and marks it visited. It
// blocks while the queue is empty but other workers may still add links.
// It returns false once the budget is spent, the crawl has run dry or Stop
// was called. Every successful Next must be paired with Done.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return "", false
		}
		if len(f.visited) >= f.maxPages {
			f.stopLocked()
			return "", false
		}

		for len(f.items) > 0 {
			u := f.items[0]
			f.items = f.items[1:]
			if _, seen := f.visited[u]; seen {
				continue
			}
			f.visited[u] = struct{}{}
			f.inFlight++
			return u, true
		}

		if f.inFlight == 0 {
			// nothing queued and nobody left to discover more
			f.stopLocked()
			return "", false
		}
		f.cond.Wait()
	}
}

// Done reports that a URL handed out by Next has been processed
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.inFlight == 0 && len(f.items) == 0 {
		f.cond.Broadcast()
	}
}

// Stop wakes all waiting workers; subsequent Next calls return false
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *Frontier) stopLocked() {
	f.stopped = true
	f.cond.Broadcast()
}

// Visited returns the number of URLs handed out
func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Size returns the number of URLs waiting
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
