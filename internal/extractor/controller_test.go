package extractor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	mock_browser "github.com/orgball2608/weibo-parser-discord-bot/internal/browser/mocks"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	mock_ratelimit "github.com/orgball2608/weibo-parser-discord-bot/internal/ratelimit/mocks"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var feedPage = browser.PageState{
	URL:  "https://weibo.com/u/123",
	HTML: strings.Repeat(`<div class="card">weibo</div>`, 300),
}

var endpointAlpha = domain.Endpoint{Name: "alpha", ProfileURL: "https://weibo.com/u/123"}

func capture(t *testing.T, body string) string {
	t.Helper()
	out, err := json.Marshal(map[string]any{"ok": true, "status": 200, "text": body})
	require.NoError(t, err)
	return string(out)
}

type harness struct {
	ctrl       *Controller
	sleeps     []time.Duration
	navigates  atomic.Int32
	launches   atomic.Int32
	rotations  atomic.Int32
	closes     atomic.Int32
	dumpDir    string
	failFirstN int32
}

// newHarness fails the first n navigations with an error page and succeeds after.
func newHarness(t *testing.T, failFirstN int32, opts Options) *harness {
	t.Helper()
	mc := gomock.NewController(t)
	h := &harness{failFirstN: failFirstN, dumpDir: t.TempDir()}

	session := mock_browser.NewMockSession(mc)
	session.EXPECT().Ping(gomock.Any()).Return(nil).AnyTimes()
	session.EXPECT().Close().DoAndReturn(func() error {
		h.closes.Add(1)
		return nil
	}).AnyTimes()
	session.EXPECT().Rotate(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, vp browser.Viewport) error {
		assert.Contains(t, browser.Viewports, vp)
		h.rotations.Add(1)
		return nil
	}).AnyTimes()
	session.EXPECT().Navigate(gomock.Any(), "https://weibo.com/u/123").DoAndReturn(
		func(context.Context, string) (browser.PageState, error) {
			if h.navigates.Add(1) <= h.failFirstN {
				return browser.PageState{URL: "about:blank"}, nil
			}
			return feedPage, nil
		}).AnyTimes()
	session.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(capture(t, `{"data":{"list":[{"id":2,"text_raw":"b"},{"id":1,"text_raw":"a"}]}}`), nil).
		AnyTimes()

	launcher := mock_browser.NewMockLauncher(mc)
	launcher.EXPECT().Launch(gomock.Any()).DoAndReturn(func(context.Context) (browser.Session, error) {
		h.launches.Add(1)
		return session, nil
	}).AnyTimes()

	limiter := mock_ratelimit.NewMockLimiter(mc)
	limiter.EXPECT().WaitIfNeeded(gomock.Any()).Return(nil).AnyTimes()

	opts.DumpDir = h.dumpDir
	h.ctrl = NewController(launcher, limiter, clockwork.NewFakeClockAt(time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC)), opts, logger.Nop())
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func testOptions() Options {
	return Options{
		Method:        MethodAjaxJSON,
		MaxAttempts:   10,
		BaseDelay:     90 * time.Second,
		MaxDelay:      300 * time.Second,
		RecreateEvery: 3,
		RotateEvery:   2,
	}
}

func TestFetchWithRetrySucceedsAfterKFailures(t *testing.T) {
	for _, k := range []int32{0, 1, 4, 9} {
		h := newHarness(t, k, testOptions())

		posts, err := h.ctrl.FetchWithRetry(context.Background(), endpointAlpha)
		require.NoError(t, err, "k=%d", k)
		require.Len(t, posts, 2)
		assert.Equal(t, int64(2), posts[0].ID)
		assert.Len(t, h.sleeps, int(k), "one backoff sleep per failure")
		assert.Equal(t, k+1, h.navigates.Load())
	}
}

func TestFetchWithRetryBackoffBounds(t *testing.T) {
	h := newHarness(t, 5, testOptions())

	_, err := h.ctrl.FetchWithRetry(context.Background(), endpointAlpha)
	require.NoError(t, err)
	require.Len(t, h.sleeps, 5)

	base := []time.Duration{90 * time.Second, 180 * time.Second, 300 * time.Second, 300 * time.Second, 300 * time.Second}
	for i, d := range h.sleeps {
		lo := time.Duration(float64(base[i]) * 0.8)
		hi := time.Duration(float64(base[i]) * 1.2)
		assert.True(t, d >= lo && d <= hi, "sleep %d = %v outside [%v, %v]", i, d, lo, hi)
	}
}

func TestFetchWithRetryGivesUp(t *testing.T) {
	h := newHarness(t, 100, testOptions())

	posts, err := h.ctrl.FetchWithRetry(context.Background(), endpointAlpha)
	assert.Nil(t, posts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransientFetch))

	assert.Equal(t, int32(10), h.navigates.Load(), "exactly max attempts")
	assert.Len(t, h.sleeps, 9, "no sleep after the last attempt")
	assert.Equal(t, int32(4), h.launches.Load(), "initial launch plus recreate after failures 3, 6, 9")
	assert.Equal(t, int32(3), h.closes.Load())
	assert.Equal(t, int32(4), h.rotations.Load(), "rotate after failures 2, 4, 6, 8")
}

func TestFetchWithRetryStopsOnCancel(t *testing.T) {
	h := newHarness(t, 100, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		cancel()
		return ctx.Err()
	}

	_, err := h.ctrl.FetchWithRetry(ctx, endpointAlpha)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), h.navigates.Load())
	assert.Len(t, h.sleeps, 1)
}

func TestFetchWithRetryDumpsCapture(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.ctrl.opts.Location = time.FixedZone("CST", 8*3600)

	_, err := h.ctrl.FetchWithRetry(context.Background(), domain.Endpoint{Name: "al pha/1", ProfileURL: endpointAlpha.ProfileURL})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(h.dumpDir, "al_pha_1_20250315_100000.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text_raw":"b"`)
}

func TestFetchWithRetryResolvesUIDFromPage(t *testing.T) {
	mc := gomock.NewController(t)
	session := mock_browser.NewMockSession(mc)
	launcher := mock_browser.NewMockLauncher(mc)
	limiter := mock_ratelimit.NewMockLimiter(mc)

	limiter.EXPECT().WaitIfNeeded(gomock.Any()).Return(nil)
	launcher.EXPECT().Launch(gomock.Any()).Return(session, nil)
	gomock.InOrder(
		session.EXPECT().Navigate(gomock.Any(), "https://weibo.com/genshin").Return(feedPage, nil),
		session.EXPECT().Evaluate(gomock.Any(), uidScript).Return("6593199887", nil),
		session.EXPECT().Navigate(gomock.Any(), "https://weibo.com/u/6593199887").Return(feedPage, nil),
		session.EXPECT().Evaluate(gomock.Any(), ajaxScript("6593199887")).
			Return(capture(t, `{"data":{"list":[{"id":9}]}}`), nil),
	)

	opts := testOptions()
	opts.MaxAttempts = 1
	c := NewController(launcher, limiter, clockwork.NewFakeClock(), opts, logger.Nop())

	posts, err := c.FetchWithRetry(context.Background(), domain.Endpoint{Name: "g", ProfileURL: "https://weibo.com/genshin"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(9), posts[0].ID)
}

func TestFetchWithRetryRelaunchesDeadSession(t *testing.T) {
	mc := gomock.NewController(t)
	dead := mock_browser.NewMockSession(mc)
	fresh := mock_browser.NewMockSession(mc)
	launcher := mock_browser.NewMockLauncher(mc)
	limiter := mock_ratelimit.NewMockLimiter(mc)
	limiter.EXPECT().WaitIfNeeded(gomock.Any()).Return(nil).Times(2)

	gomock.InOrder(
		launcher.EXPECT().Launch(gomock.Any()).Return(dead, nil),
		launcher.EXPECT().Launch(gomock.Any()).Return(fresh, nil),
	)
	dead.EXPECT().Navigate(gomock.Any(), gomock.Any()).Return(feedPage, nil)
	dead.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(capture(t, `{"data":{"list":[{"id":1}]}}`), nil)
	dead.EXPECT().Ping(gomock.Any()).Return(errors.New("target closed"))
	dead.EXPECT().Close().Return(nil)
	fresh.EXPECT().Navigate(gomock.Any(), gomock.Any()).Return(feedPage, nil)
	fresh.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(capture(t, `{"data":{"list":[{"id":2}]}}`), nil)

	c := NewController(launcher, limiter, clockwork.NewFakeClock(), testOptions(), logger.Nop())
	_, err := c.FetchWithRetry(context.Background(), endpointAlpha)
	require.NoError(t, err)

	posts, err := c.FetchWithRetry(context.Background(), endpointAlpha)
	require.NoError(t, err)
	assert.Equal(t, int64(2), posts[0].ID)
}

func TestClockSleepHonoursFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(nil, nil, clock, testOptions(), logger.Nop())

	done := make(chan error, 1)
	go func() { done <- c.wait(context.Background(), time.Minute) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)
	assert.NoError(t, <-done)
}

func TestFetchWithRetryRecoversNavigationWithinAttempt(t *testing.T) {
	mc := gomock.NewController(t)
	session := mock_browser.NewMockSession(mc)
	launcher := mock_browser.NewMockLauncher(mc)
	limiter := mock_ratelimit.NewMockLimiter(mc)

	limiter.EXPECT().WaitIfNeeded(gomock.Any()).Return(nil)
	launcher.EXPECT().Launch(gomock.Any()).Return(session, nil)
	blank := browser.PageState{URL: "about:blank"}
	gomock.InOrder(
		session.EXPECT().Navigate(gomock.Any(), "https://weibo.com/u/123").Return(blank, nil),
		session.EXPECT().Rotate(gomock.Any(), gomock.Any()).Return(nil),
		session.EXPECT().Navigate(gomock.Any(), "https://weibo.com/u/123").Return(blank, nil),
		session.EXPECT().Rotate(gomock.Any(), gomock.Any()).Return(errors.New("cookies locked")),
		session.EXPECT().Navigate(gomock.Any(), "https://m.weibo.cn/u/123").Return(feedPage, nil),
		session.EXPECT().Evaluate(gomock.Any(), ajaxScript("123")).
			Return(capture(t, `{"data":{"list":[{"id":5}]}}`), nil),
	)

	opts := testOptions()
	opts.MaxAttempts = 1
	opts.NavRetries = 3
	opts.NavPauseMin = 10 * time.Second
	opts.NavPauseMax = 10 * time.Second
	c := NewController(launcher, limiter, clockwork.NewFakeClock(), opts, logger.Nop())
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}

	posts, err := c.FetchWithRetry(context.Background(), endpointAlpha)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(5), posts[0].ID)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeps, "one pause before each reload")
}

func TestNavigationGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t, 100, Options{MaxAttempts: 1, NavRetries: 2})

	_, err := h.ctrl.FetchWithRetry(context.Background(), endpointAlpha)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransientFetch))
	assert.Equal(t, int32(2), h.navigates.Load())
	assert.Equal(t, int32(1), h.rotations.Load())
}
