package classifier

import (
	"context"
	"time"
)

type timeoutClassifier struct {
	next    Classifier
	timeout time.Duration
}

// WithTimeout bounds every call to c by d. A non-positive d returns c unchanged.
func WithTimeout(c Classifier, d time.Duration) Classifier {
	if d <= 0 {
		return c
	}
	return &timeoutClassifier{next: c, timeout: d}
}

func (t *timeoutClassifier) ClassifyPage(ctx context.Context, req PageRequest) (Action, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.ClassifyPage(ctx, req)
}

func (t *timeoutClassifier) SelectLinks(ctx context.Context, sourceURL string, urls []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.SelectLinks(ctx, sourceURL, urls)
}
