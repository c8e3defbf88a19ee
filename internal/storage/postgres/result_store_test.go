package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var (
	firstSeen = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now       = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
)

var resultColumns = []string{
	"url", "title", "organization", "location", "description", "email", "date_posted",
	"valid_through", "apply_url", "extra", "score", "reasons", "source", "extracted_at", "updated_at",
}

func TestUpsertMergesOnConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "results", fixedClock{now})
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)INSERT INTO results .* ON CONFLICT \(url\) DO UPDATE SET`).
		WithArgs(
			"https://org.de/jobs/1",
			"New title",
			"", "", "",
			"",
			"", "", "",
			[]byte(`{"hours":"full-time"}`),
			55,
			[]string{"contact email available"},
			"org",
			now,
		).
		WillReturnRows(pgxmock.NewRows(resultColumns).AddRow(
			"https://org.de/jobs/1", "New title", "", "", "", "jobs@org.de", "", "", "",
			[]byte(`{"hours":"full-time","salary":"50k"}`),
			55, []string{"contact email available"}, "org", firstSeen, now,
		))

	saved, err := store.Upsert(context.Background(), crawler.ResultRecord{
		URL:     "https://org.de/jobs/1/?utm_source=x",
		Title:   " New title\x00",
		Score:   55,
		Reasons: []string{"contact email available"},
		Source:  "org",
		Extra:   map[string]string{"hours": "full-time"},
	})
	require.NoError(t, err)
	require.Equal(t, "jobs@org.de", saved.Email)
	require.Equal(t, firstSeen, saved.ExtractedAt)
	require.Equal(t, now, saved.UpdatedAt)
	require.Equal(t, map[string]string{"hours": "full-time", "salary": "50k"}, saved.Extra)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "", fixedClock{now})
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO results`).WillReturnError(errors.New("connection reset"))
	_, err = store.Upsert(context.Background(), crawler.ResultRecord{URL: "https://org.de/a"})
	require.ErrorContains(t, err, "upsert result")
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.Upsert(context.Background(), crawler.ResultRecord{})
	require.Error(t, err)
}

func TestListScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "results", fixedClock{now})
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT .* FROM results ORDER BY extracted_at, url`).
		WillReturnRows(pgxmock.NewRows(resultColumns).
			AddRow("https://org.de/a", "A", "Org", "Berlin", "", "a@org.de", "", "", "",
				[]byte(`{}`), 40, []string{"x"}, "org", firstSeen, firstSeen).
			AddRow("https://org.de/b", "B", "", "", "", "", "", "", "",
				[]byte(`{"k":"v"}`), 10, []string{}, "org", now, now))

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Org", records[0].Organization)
	require.Nil(t, records[0].Extra)
	require.Equal(t, map[string]string{"k": "v"}, records[1].Extra)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "job_results", fixedClock{now})
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS job_results`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;name", fixedClock{now})
	require.Error(t, err)
	_, err = NewWithPool(nil, "", fixedClock{now})
	require.Error(t, err)
	_, err = NewWithPool(mock, "", nil)
	require.Error(t, err)
}
