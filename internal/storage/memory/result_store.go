package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/storage"
)

// ResultStore provides an in-memory result store ordered by first insertion.
type ResultStore struct {
	clock crawler.Clock

	mu      sync.RWMutex
	order   []string
	records map[string]crawler.ResultRecord
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// NewResultStore constructs a ResultStore.
func NewResultStore(clock crawler.Clock) *ResultStore {
	return &ResultStore{
		clock:   clock,
		records: make(map[string]crawler.ResultRecord),
	}
}

// Upsert merges the record into any existing entry for the same canonical URL.
func (s *ResultStore) Upsert(_ context.Context, record crawler.ResultRecord) (crawler.ResultRecord, error) {
	incoming := storage.Sanitize(record)
	if incoming.URL == "" {
		return crawler.ResultRecord{}, errors.New("record url is required")
	}
	now := s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[incoming.URL]
	if ok {
		merged := storage.Merge(existing, incoming, now)
		s.records[incoming.URL] = merged
		return merged, nil
	}
	saved := storage.Prepare(incoming, now)
	s.records[saved.URL] = saved
	s.order = append(s.order, saved.URL)
	return saved, nil
}

// List returns all records in insertion order.
func (s *ResultStore) List(_ context.Context) ([]crawler.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ResultRecord, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.records[url])
	}
	return out, nil
}
