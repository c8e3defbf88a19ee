package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func TestResultStoreUpsertMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewResultStore(&tickClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})

	first, err := store.Upsert(ctx, crawler.ResultRecord{URL: "https://org.de/jobs/1", Title: "A", Email: "a@org.de"})
	require.NoError(t, err)

	second, err := store.Upsert(ctx, crawler.ResultRecord{URL: "https://ORG.de/jobs/1/", Title: "B"})
	require.NoError(t, err)
	require.Equal(t, "B", second.Title)
	require.Equal(t, "a@org.de", second.Email)
	require.Equal(t, first.ExtractedAt, second.ExtractedAt)
	require.Equal(t, first.UpdatedAt.Add(time.Minute), second.UpdatedAt)

	_, err = store.Upsert(ctx, crawler.ResultRecord{URL: "https://org.de/jobs/0"})
	require.NoError(t, err)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "https://org.de/jobs/1", records[0].URL)
	require.Equal(t, "https://org.de/jobs/0", records[1].URL)
}

func TestResultStoreRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	_, err := NewResultStore(&tickClock{}).Upsert(context.Background(), crawler.ResultRecord{})
	require.Error(t, err)
}
