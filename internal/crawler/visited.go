package crawler

import (
	"sync"
)

// VisitTracker is the process-local visited set for one crawl run.
type VisitTracker struct {
	seen sync.Map
	size sync.Mutex
	n    int
}

// NewVisitTracker creates an empty tracker.
func NewVisitTracker() *VisitTracker {
	return &VisitTracker{}
}

// MarkIfNew stores the key if it has not been seen before and returns true.
func (t *VisitTracker) MarkIfNew(key string) bool {
	if key == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(key, struct{}{})
	if !loaded {
		t.size.Lock()
		t.n++
		t.size.Unlock()
	}
	return !loaded
}

// Forget removes a key so a retried job can run again.
func (t *VisitTracker) Forget(key string) {
	if _, loaded := t.seen.LoadAndDelete(key); loaded {
		t.size.Lock()
		t.n--
		t.size.Unlock()
	}
}

// Len returns the number of tracked keys.
func (t *VisitTracker) Len() int {
	t.size.Lock()
	defer t.size.Unlock()
	return t.n
}
