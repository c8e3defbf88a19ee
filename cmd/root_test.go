package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/config"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	queueMemory "github.com/JakeFAU/jobscout-crawler/internal/queue/memory"
)

type fakeApp struct {
	queue     *queueMemory.Queue
	crawled   bool
	served    bool
	closed    bool
	submitted []crawler.Site
	saved     bool
	crawlErr  error
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) Crawl(context.Context) error {
	f.crawled = true
	return f.crawlErr
}

func (f *fakeApp) SubmitSite(_ context.Context, site crawler.Site, save bool) (crawler.QueueItem, bool, error) {
	f.submitted = append(f.submitted, site)
	f.saved = save
	return crawler.QueueItem{Key: "k1", Job: crawler.CrawlJob{URL: site.URL, Source: site.Name}}, true, nil
}

func (f *fakeApp) Queue() crawler.Queue {
	return f.queue
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func withFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	q := queueMemory.NewQueue(4, nil)
	t.Cleanup(q.Close)
	fake := &fakeApp{queue: q}

	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
	return fake
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueueCommand(t *testing.T) {
	fake := withFakeApp(t)

	out, err := execute(t, "enqueue", "--name", "org", "--url", "https://org.de/jobs",
		"--schema", "salary=Salary band", "--save")
	require.NoError(t, err)

	require.Len(t, fake.submitted, 1)
	assert.Equal(t, "org", fake.submitted[0].Name)
	assert.Equal(t, "Salary band", fake.submitted[0].Schema["salary"])
	assert.True(t, fake.saved)
	assert.True(t, fake.closed)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "k1", resp["job_key"])
	assert.Equal(t, true, resp["added"])
}

func TestEnqueueCommandRequiresFlags(t *testing.T) {
	withFakeApp(t)

	_, err := execute(t, "enqueue", "--name", "org")
	require.Error(t, err)
}

func TestCrawlCommandPrintsStats(t *testing.T) {
	fake := withFakeApp(t)
	_, err := fake.queue.Enqueue(context.Background(), crawler.QueueItem{Key: "a", Job: crawler.CrawlJob{URL: "https://org.de"}})
	require.NoError(t, err)

	out, err := execute(t, "crawl")
	require.NoError(t, err)
	assert.True(t, fake.crawled)
	assert.True(t, fake.closed)

	var stats crawler.QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 1, stats.Waiting)
}

func TestCrawlCommandReportsFailure(t *testing.T) {
	fake := withFakeApp(t)
	fake.crawlErr = errors.New("queue stats: redis down")

	_, err := execute(t, "crawl")
	require.ErrorContains(t, err, "redis down")
}

func TestServeCommand(t *testing.T) {
	fake := withFakeApp(t)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, fake.served)
}

func TestBuildFailureIsReported(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("redis queue init failed")
	}
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "stats")
	require.ErrorContains(t, err, "failed to initialize application services")
}
