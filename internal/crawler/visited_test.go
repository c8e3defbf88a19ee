package crawler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVisitTracker(t *testing.T) {
	tracker := NewVisitTracker()
	require.True(t, tracker.MarkIfNew("https://example.org/first"))
	require.False(t, tracker.MarkIfNew("https://example.org/first"))
	require.True(t, tracker.MarkIfNew("https://example.org/second"))
	require.False(t, tracker.MarkIfNew(""))
	require.Equal(t, 2, tracker.Len())

	tracker.Forget("https://example.org/first")
	require.Equal(t, 1, tracker.Len())
	require.True(t, tracker.MarkIfNew("https://example.org/first"))
}

func TestVisitTrackerConcurrentMarks(t *testing.T) {
	tracker := NewVisitTracker()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.MarkIfNew("same-key") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
