package crawler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// JobKey derives the queue idempotency key from (canonical URL, source, depth).
// The same triple always yields the same key.
func JobKey(h Hasher, job CrawlJob) (string, error) {
	canonical := Canonicalize(job.URL)
	digest, err := h.Hash([]byte(canonical + "\n" + job.Source + "\n" + strconv.Itoa(job.Depth)))
	if err != nil {
		return "", fmt.Errorf("hash job key: %w", err)
	}
	if len(digest) > 32 {
		digest = digest[:32]
	}
	return fmt.Sprintf("crawl-%s-%d-%s", sourceSlug(job.Source), job.Depth, digest), nil
}

// NewQueueItem canonicalizes the job URL and wraps it with its key.
func NewQueueItem(h Hasher, clock Clock, job CrawlJob) (QueueItem, error) {
	job.URL = Canonicalize(job.URL)
	key, err := JobKey(h, job)
	if err != nil {
		return QueueItem{}, err
	}
	return QueueItem{
		Key:       key,
		Job:       job,
		Attempt:   1,
		Submitted: clock.Now().UnixMilli(),
	}, nil
}

func sourceSlug(source string) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(source), "-"), "-")
	if slug == "" {
		return "default"
	}
	return slug
}
