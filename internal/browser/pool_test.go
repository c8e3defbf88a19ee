package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu        sync.Mutex
	launches  int
	failNext  error
	cancels   []context.CancelFunc
	opened    atomic.Int64
	closed    atomic.Int64
	prepCalls atomic.Int64
}

func (f *fakeBrowser) launch(parent context.Context) (context.Context, context.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, nil, err
	}
	f.launches++
	ctx, cancel := context.WithCancel(parent)
	f.cancels = append(f.cancels, cancel)
	return ctx, cancel, nil
}

func (f *fakeBrowser) crash() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[len(f.cancels)-1]()
}

func (f *fakeBrowser) open(browserCtx context.Context) (context.Context, context.CancelFunc) {
	f.opened.Add(1)
	ctx, cancel := context.WithCancel(browserCtx)
	var once sync.Once
	return ctx, func() {
		once.Do(func() { f.closed.Add(1) })
		cancel()
	}
}

func (f *fakeBrowser) prepare(context.Context) error {
	f.prepCalls.Add(1)
	return nil
}

func newTestPool(t *testing.T, maxPages int) (*Pool, *fakeBrowser) {
	t.Helper()
	fb := &fakeBrowser{}
	p := newPool(Config{MaxPages: maxPages}, nil, fb.launch, fb.open, fb.prepare)
	t.Cleanup(func() { _ = p.Close() })
	return p, fb
}

func TestWithRenderedPageCapsConcurrency(t *testing.T) {
	t.Parallel()

	p, fb := newTestPool(t, 2)
	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithRenderedPage(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int64(2))
	require.Equal(t, 1, p.Launches(), "browser is shared")
	require.Equal(t, int64(6), fb.opened.Load())
	require.Equal(t, int64(6), fb.closed.Load())
	require.Equal(t, int64(6), fb.prepCalls.Load())
	require.Zero(t, p.Active())
}

func TestWithRenderedPageReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	p, fb := newTestPool(t, 1)
	boom := errors.New("boom")
	err := p.WithRenderedPage(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_ = p.WithRenderedPage(context.Background(), func(context.Context) error { panic("render exploded") })
	}()

	require.Zero(t, p.Active())
	require.Equal(t, int64(2), fb.closed.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.WithRenderedPage(ctx, func(context.Context) error { return nil }), "slot was released")
}

func TestWithRenderedPageHonorsCancellationWhileWaiting(t *testing.T) {
	t.Parallel()

	p, _ := newTestPool(t, 1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.WithRenderedPage(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.WithRenderedPage(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "acquire render slot")
	close(hold)
}

func TestWithRenderedPageClosesTabOnCallerCancel(t *testing.T) {
	t.Parallel()

	p, fb := newTestPool(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.WithRenderedPage(ctx, func(pageCtx context.Context) error {
			<-pageCtx.Done()
			return pageCtx.Err()
		})
	}()

	require.Eventually(t, func() bool { return fb.opened.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("page was not closed on cancel")
	}
	require.Equal(t, int64(1), fb.closed.Load())
}

func TestPoolRestartsDeadBrowser(t *testing.T) {
	t.Parallel()

	p, fb := newTestPool(t, 1)
	noop := func(context.Context) error { return nil }
	require.NoError(t, p.WithRenderedPage(context.Background(), noop))
	require.Equal(t, 1, p.Launches())

	fb.crash()
	require.NoError(t, p.WithRenderedPage(context.Background(), noop))
	require.Equal(t, 2, p.Launches())
}

func TestPoolLaunchFailureIsRetried(t *testing.T) {
	t.Parallel()

	p, fb := newTestPool(t, 1)
	fb.failNext = errors.New("chrome not found")
	noop := func(context.Context) error { return nil }

	err := p.WithRenderedPage(context.Background(), noop)
	require.ErrorContains(t, err, "launch browser")
	require.Zero(t, p.Active())

	require.NoError(t, p.WithRenderedPage(context.Background(), noop))
	require.Equal(t, 1, p.Launches())
}

func TestPoolPrepareFailure(t *testing.T) {
	t.Parallel()

	fb := &fakeBrowser{}
	p := newPool(Config{}, nil, fb.launch, fb.open, func(context.Context) error { return errors.New("cdp down") })
	defer p.Close()

	called := false
	err := p.WithRenderedPage(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "prepare page")
	require.False(t, called)
	require.Equal(t, int64(1), fb.closed.Load())
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	p, _ := newTestPool(t, 1)
	require.NoError(t, p.WithRenderedPage(context.Background(), func(context.Context) error { return nil }))
	require.NoError(t, p.Close())
	err := p.WithRenderedPage(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{})
	require.Equal(t, DefaultMaxPages, cfg.MaxPages)
	require.Equal(t, DefaultUserAgent, cfg.UserAgent)
}
