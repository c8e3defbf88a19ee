package crawler

import (
	"context"
	"io"
	"time"
)

// ResultStore persists accepted records keyed by canonical URL.
type ResultStore interface {
	Upsert(ctx context.Context, record ResultRecord) (ResultRecord, error)
	List(ctx context.Context) ([]ResultRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes result events to Pub/Sub, Kafka (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageFetcher fetches a URL and returns its extracted signals.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (PageSignals, error)
}

// HeadlessDetector decides whether the rendering fallback is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse, page PageSignals) bool
}

// LinkFilter reduces and ranks discovered links.
type LinkFilter interface {
	FilterAndRank(ctx context.Context, sourceURL string, links []string, next string) []string
}

// Queue is the durable frontier. Enqueue reports false when the key is already pending.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) (bool, error)
	Dequeue(ctx context.Context) (QueueItem, error)
	Complete(ctx context.Context, item QueueItem) error
	Fail(ctx context.Context, item QueueItem, cause error) (bool, error)
	Stats(ctx context.Context) (QueueStats, error)
}

// RetryPolicy decides whether and when a failed job runs again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for idempotency keys and snapshots.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and event IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
