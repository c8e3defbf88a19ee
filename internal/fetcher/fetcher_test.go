package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/extract"
)

type stubFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.calls++
	if s.err != nil {
		return crawler.FetchResponse{}, s.err
	}
	resp := s.resp
	if resp.URL == "" {
		resp.URL = req.URL
	}
	return resp, nil
}

type stubDetector struct{ promote bool }

func (d stubDetector) ShouldPromote(crawler.FetchResponse, crawler.PageSignals) bool { return d.promote }

type stubLimiter struct {
	hosts []string
	err   error
}

func (l *stubLimiter) Wait(_ context.Context, rawURL string) error {
	l.hosts = append(l.hosts, rawURL)
	return l.err
}

func htmlResp(body string) crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

const fastHTML = `<html><body><a href="/jobs/1">one</a></body></html>`
const renderedHTML = `<html><body><a href="/jobs/1">one</a><a href="/jobs/2">two</a></body></html>`

func TestFetchFastPathOnly(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{resp: htmlResp(fastHTML)}
	render := &stubFetcher{resp: htmlResp(renderedHTML)}
	limiter := &stubLimiter{}
	f := New(fast, render, stubDetector{promote: false}, extract.New(nil), limiter, nil)

	page, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.NoError(t, err)
	require.Equal(t, "https://org.de/jobs", page.URL)
	require.Equal(t, []string{"https://org.de/jobs/1"}, page.Links)
	require.False(t, page.Rendered)
	require.Zero(t, render.calls)
	require.Equal(t, []string{"https://org.de/jobs"}, limiter.hosts)
}

func TestFetchPromotesToRender(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{resp: htmlResp(fastHTML)}
	render := &stubFetcher{resp: htmlResp(renderedHTML)}
	f := New(fast, render, stubDetector{promote: true}, extract.New(nil), nil, nil)

	page, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.NoError(t, err)
	require.True(t, page.Rendered)
	require.Len(t, page.Links, 2)
	require.Equal(t, 1, render.calls)
}

func TestFetchRendersWhenFastPathFails(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{err: errors.New("403 Forbidden")}
	render := &stubFetcher{resp: htmlResp(renderedHTML)}
	f := New(fast, render, nil, extract.New(nil), nil, nil)

	page, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.NoError(t, err)
	require.True(t, page.Rendered)
}

func TestFetchKeepsFastResultWhenRenderFails(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{resp: htmlResp(fastHTML)}
	render := &stubFetcher{err: errors.New("chrome crashed")}
	f := New(fast, render, stubDetector{promote: true}, extract.New(nil), nil, nil)

	page, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.NoError(t, err)
	require.False(t, page.Rendered)
	require.Equal(t, []string{"https://org.de/jobs/1"}, page.Links)
}

func TestFetchBothFail(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{err: crawler.Transient("fetch", errors.New("503"))}
	render := &stubFetcher{err: errors.New("chrome crashed")}
	f := New(fast, render, nil, extract.New(nil), nil, nil)

	_, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.Error(t, err)
	require.ErrorContains(t, err, "chrome crashed")
	require.True(t, crawler.IsTransient(err))
}

func TestFetchWithoutRenderer(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{err: errors.New("timeout")}
	f := New(fast, nil, stubDetector{promote: true}, extract.New(nil), nil, nil)
	_, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.ErrorContains(t, err, "timeout")
}

func TestFetchLimiterError(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{resp: htmlResp(fastHTML)}
	f := New(fast, nil, nil, extract.New(nil), &stubLimiter{err: context.Canceled}, nil)
	_, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, fast.calls)
}

func TestFetchUsesFinalURLAsBase(t *testing.T) {
	t.Parallel()

	fast := &stubFetcher{resp: crawler.FetchResponse{
		URL:        "https://org.de/karriere/",
		StatusCode: http.StatusOK,
		Body:       []byte(`<html><body><a href="stelle-1">Stelle</a></body></html>`),
	}}
	f := New(fast, nil, nil, extract.New(nil), nil, nil)

	page, err := f.Fetch(context.Background(), "https://org.de/jobs")
	require.NoError(t, err)
	require.Equal(t, "https://org.de/jobs", page.URL)
	require.Equal(t, []string{"https://org.de/karriere/stelle-1"}, page.Links)
}
