package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

func TestSanitizeStripsControlCharacters(t *testing.T) {
	t.Parallel()

	rec := Sanitize(crawler.ResultRecord{
		URL:     " https://Org.de/jobs/1/?utm_source=x ",
		Title:   "\tReferent\x00 (m/w/d)\n",
		Email:   " HR@Org.de\x7f",
		Extra:   map[string]string{"salary": " 50k\x1b ", "empty": "\x00"},
		Reasons: []string{"contact email available", " \x01 "},
	})

	require.Equal(t, "https://org.de/jobs/1", rec.URL)
	require.Equal(t, "Referent (m/w/d)", rec.Title)
	require.Equal(t, "hr@org.de", rec.Email)
	require.Equal(t, map[string]string{"salary": "50k"}, rec.Extra)
	require.Equal(t, []string{"contact email available"}, rec.Reasons)
}

func TestMergeKeepsPriorFieldsAndExtractedAt(t *testing.T) {
	t.Parallel()

	first := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	existing := crawler.ResultRecord{
		URL:         "https://org.de/jobs/1",
		Title:       "Old title",
		Email:       "jobs@org.de",
		Score:       40,
		Reasons:     []string{"contact email available"},
		Extra:       map[string]string{"salary": "50k"},
		ExtractedAt: first,
		UpdatedAt:   first,
	}
	incoming := crawler.ResultRecord{
		URL:   "https://org.de/jobs/1",
		Title: "New title",
		Score: 55,
		Extra: map[string]string{"hours": "full-time"},
	}

	merged := Merge(existing, incoming, second)
	require.Equal(t, "New title", merged.Title)
	require.Equal(t, "jobs@org.de", merged.Email)
	require.Equal(t, 55, merged.Score)
	require.Equal(t, []string{"contact email available"}, merged.Reasons)
	require.Equal(t, map[string]string{"salary": "50k", "hours": "full-time"}, merged.Extra)
	require.Equal(t, first, merged.ExtractedAt)
	require.Equal(t, second, merged.UpdatedAt)
}

func TestPrepareStampsTimes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := Prepare(crawler.ResultRecord{URL: "https://org.de/a"}, now)
	require.Equal(t, now, rec.ExtractedAt)
	require.Equal(t, now, rec.UpdatedAt)
}
