package extractor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/metrics"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/ratelimit"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"go.uber.org/fx"
)

type Method string

const (
	MethodAjaxJSON  Method = "ajax_json"
	MethodMobileDOM Method = "mobile_dom"
)

const (
	mobileScrolls = 8
	scrollPause   = time.Second
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Options struct {
	Method        Method
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RecreateEvery int
	RotateEvery   int
	PacingMin     time.Duration
	PacingMax     time.Duration
	AjaxWait      time.Duration
	// NavRetries is how many times one attempt loads a page that came back
	// as an error page; the third load goes to the mobile site.
	NavRetries    int
	NavPauseMin   time.Duration
	NavPauseMax   time.Duration
	DumpDir       string
	Location      *time.Location
}

func OptionsFromConfig(cfg *config.Config) Options {
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return Options{
		Method:        Method(cfg.Extractor.Method),
		MaxAttempts:   cfg.Extractor.MaxAttempts,
		BaseDelay:     cfg.Extractor.BaseDelay,
		MaxDelay:      cfg.Extractor.MaxDelay,
		RecreateEvery: cfg.Extractor.RecreateEvery,
		RotateEvery:   cfg.Extractor.RotateEvery,
		PacingMin:     cfg.Extractor.PacingMin,
		PacingMax:     cfg.Extractor.PacingMax,
		AjaxWait:      cfg.Extractor.AjaxWait,
		NavRetries:    cfg.Extractor.NavRetries,
		NavPauseMin:   cfg.Extractor.NavPauseMin,
		NavPauseMax:   cfg.Extractor.NavPauseMax,
		DumpDir:       cfg.Extractor.DumpDir,
		Location:      loc,
	}
}

// Controller obtains feed snapshots through a browser session it owns.
// Calls are serialized; the session is relaunched on recovery.
type Controller struct {
	launcher browser.Launcher
	limiter  ratelimit.Limiter
	clock    clockwork.Clock
	opts     Options
	logger   logger.Logger

	// sleep is swapped in tests to observe backoff waits.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	session browser.Session
}

type Opts struct {
	fx.In
	LC       fx.Lifecycle
	Launcher browser.Launcher
	Limiter  ratelimit.Limiter
	Clock    clockwork.Clock
	Config   *config.Config
	Logger   logger.Logger
}

func New(opts Opts) *Controller {
	c := NewController(opts.Launcher, opts.Limiter, opts.Clock, OptionsFromConfig(opts.Config), opts.Logger)
	opts.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c
}

func NewController(l browser.Launcher, limiter ratelimit.Limiter, clock clockwork.Clock, opts Options, log logger.Logger) *Controller {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.NavRetries < 1 {
		opts.NavRetries = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	c := &Controller{
		launcher: l,
		limiter:  limiter,
		clock:    clock,
		opts:     opts,
		logger:   log.WithComponent("Extractor"),
	}
	c.sleep = c.clockSleep
	return c
}

// FetchWithRetry returns the account's current snapshot, oldest post last.
// After MaxAttempts failures it returns an error matching errors.ErrTransientFetch.
func (c *Controller) FetchWithRetry(ctx context.Context, ep domain.Endpoint) ([]domain.RawPost, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := c.clock.Now()
	defer func() {
		metrics.ExtractDuration.WithLabelValues(ep.Name).Observe(c.clock.Since(started).Seconds())
	}()

	log := c.logger.With("account", ep.Name)
	log.Info("Getting Weibo content", "method", c.opts.Method)

	bo := c.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.wait(ctx, c.pacing()); err != nil {
			return nil, err
		}
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return nil, err
		}

		posts, err := c.attempt(ctx, ep)
		if err == nil {
			metrics.ExtractAttempts.WithLabelValues(ep.Name, "ok").Inc()
			log.Info("Retrieved posts", "count", len(posts), "attempt", attempt)
			return posts, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if errors.IsStructuralParse(err) {
			metrics.ExtractAttempts.WithLabelValues(ep.Name, "structural").Inc()
			log.Error("Snapshot has unexpected structure", "attempt", attempt, "error", err)
		} else {
			metrics.ExtractAttempts.WithLabelValues(ep.Name, "transient").Inc()
			log.Warn("Attempt failed", "attempt", attempt, "error", err)
		}

		if attempt == c.opts.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		log.Warn("Retrying", "in", delay.Round(100*time.Millisecond).String(),
			"attempt", attempt, "max_attempts", c.opts.MaxAttempts)
		if err := c.wait(ctx, delay); err != nil {
			return nil, err
		}

		if c.opts.RecreateEvery > 0 && attempt%c.opts.RecreateEvery == 0 {
			log.Info("Recreating browser session after repeated failures")
			c.recreate(ctx)
		}
		if c.opts.RotateEvery > 0 && attempt%c.opts.RotateEvery == 0 {
			c.rotate(ctx)
		}
	}

	log.Error("Failed to get content", "attempts", c.opts.MaxAttempts)
	return nil, errors.WrapWithCode(lastErr, errors.CodeTransientFetch,
		fmt.Sprintf("no snapshot for %s after %d attempts", ep.Name, c.opts.MaxAttempts))
}

// Close releases the browser session, if any.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeSession()
}

func (c *Controller) attempt(ctx context.Context, ep domain.Endpoint) ([]domain.RawPost, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	uid, err := c.resolveUID(ctx, session, ep.ProfileURL)
	if err != nil {
		return nil, err
	}

	var raw string
	switch c.opts.Method {
	case MethodMobileDOM:
		raw, err = c.captureMobile(ctx, session, uid)
	default:
		raw, err = c.captureAjax(ctx, session, uid)
	}
	if err != nil {
		return nil, err
	}

	dump := c.dump(ep.Name, uid, raw)
	posts, err := ParseSnapshot(raw, c.opts.Method)
	if err != nil {
		if dump != "" {
			return nil, errors.Wrap(err, "payload kept at "+dump)
		}
		return nil, err
	}
	if len(posts) == 0 {
		return nil, errors.Newf(errors.CodeTransientFetch, "snapshot is empty")
	}
	return posts, nil
}

func (c *Controller) ensureSession(ctx context.Context) (browser.Session, error) {
	if c.session != nil {
		if err := c.session.Ping(ctx); err == nil {
			return c.session, nil
		}
		c.logger.Warn("Browser session unresponsive, relaunching")
		_ = c.closeSession()
	}

	s, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransientFetch, "launch browser session")
	}
	c.session = s
	return s, nil
}

func (c *Controller) resolveUID(ctx context.Context, s browser.Session, profileURL string) (string, error) {
	if uid := UIDFromURL(profileURL); uid != "" {
		return uid, nil
	}

	if _, err := c.navigate(ctx, s, profileURL); err != nil {
		return "", err
	}
	val, err := s.Evaluate(ctx, uidScript)
	if err != nil {
		return "", err
	}
	if !digitsRe.MatchString(val) {
		return "", errors.Newf(errors.CodeStructuralParse, "cannot derive uid from %s", profileURL)
	}
	c.logger.Info("Extracted UID from page", "uid", val)
	return val, nil
}

// navigate loads url, recovering from error pages within the attempt: later
// loads start from a cleared session after a random pause, and the third goes
// to the mobile profile when the uid is known.
func (c *Controller) navigate(ctx context.Context, s browser.Session, url string) (browser.PageState, error) {
	var (
		state browser.PageState
		err   error
	)
	for try := 1; try <= c.opts.NavRetries; try++ {
		target := url
		if try > 1 {
			c.logger.Warn("Navigation error, retrying", "url", url, "try", try, "max_tries", c.opts.NavRetries, "error", err)
			if rerr := s.Rotate(ctx, browser.Viewports[rand.IntN(len(browser.Viewports))]); rerr != nil {
				c.logger.Warn("Failed to clear session state", "error", rerr)
			}
			if werr := c.wait(ctx, c.navPause()); werr != nil {
				return state, werr
			}
			if try == 3 {
				if uid := UIDFromURL(url); uid != "" {
					target = "https://m.weibo.cn/u/" + uid
					c.logger.Info("Trying mobile URL", "url", target)
				}
			}
		}

		state, err = s.Navigate(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			continue
		}
		if reason := ErrorPageReason(state); reason != "" {
			err = errors.Newf(errors.CodeTransientFetch, "error page at %s: %s", target, reason)
			continue
		}
		return state, nil
	}
	return state, err
}

func (c *Controller) navPause() time.Duration {
	span := c.opts.NavPauseMax - c.opts.NavPauseMin
	if span <= 0 {
		return c.opts.NavPauseMin
	}
	return c.opts.NavPauseMin + time.Duration(rand.Int64N(int64(span)))
}

func (c *Controller) captureAjax(ctx context.Context, s browser.Session, uid string) (string, error) {
	if _, err := c.navigate(ctx, s, "https://weibo.com/u/"+uid); err != nil {
		return "", err
	}
	if err := c.wait(ctx, c.opts.AjaxWait); err != nil {
		return "", err
	}

	result, err := s.Evaluate(ctx, ajaxScript(uid))
	if err != nil {
		return "", err
	}
	return ParseCapture(result)
}

func (c *Controller) captureMobile(ctx context.Context, s browser.Session, uid string) (string, error) {
	if _, err := c.navigate(ctx, s, "https://m.weibo.cn/u/"+uid); err != nil {
		return "", err
	}

	for i := 0; i < mobileScrolls; i++ {
		raw, err := s.Evaluate(ctx, mobileScript)
		if err != nil {
			return "", err
		}
		if items, perr := ParseSnapshot(raw, MethodMobileDOM); perr == nil && len(items) > 0 {
			return raw, nil
		}
		if _, err := s.Evaluate(ctx, scrollScript); err != nil {
			c.logger.Debug("Scroll failed", "error", err)
		}
		if err := c.wait(ctx, scrollPause); err != nil {
			return "", err
		}
	}
	return "", errors.Newf(errors.CodeTransientFetch, "no cards rendered on mobile page")
}

// dump writes the raw capture for inspection and returns its path.
func (c *Controller) dump(account, uid, raw string) string {
	if c.opts.DumpDir == "" {
		return ""
	}
	if account == "" {
		account = "uid" + uid
	}
	name := fmt.Sprintf("%s_%s.json",
		unsafeNameRe.ReplaceAllString(account, "_"),
		c.clock.Now().In(c.opts.Location).Format("20060102_150405"))

	if err := os.MkdirAll(c.opts.DumpDir, 0o755); err != nil {
		c.logger.Warn("Failed to create dump dir", "error", err)
		return ""
	}
	path := filepath.Join(c.opts.DumpDir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		c.logger.Warn("Failed to save captured JSON", "error", err)
		return ""
	}
	c.logger.Debug("Captured JSON saved", "path", path)
	return path
}

func (c *Controller) recreate(ctx context.Context) {
	_ = c.closeSession()
	s, err := c.launcher.Launch(ctx)
	if err != nil {
		c.logger.Warn("Relaunch failed, next attempt retries", "error", err)
		return
	}
	c.session = s
}

func (c *Controller) rotate(ctx context.Context) {
	if c.session == nil {
		return
	}
	vp := browser.Viewports[rand.IntN(len(browser.Viewports))]
	if err := c.session.Rotate(ctx, vp); err != nil {
		c.logger.Warn("Error during session rotation", "error", err)
		return
	}
	c.logger.Info("Session rotated", "width", vp.Width, "height", vp.Height)
}

func (c *Controller) closeSession() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *Controller) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxInterval = c.opts.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (c *Controller) pacing() time.Duration {
	span := c.opts.PacingMax - c.opts.PacingMin
	if span <= 0 {
		return c.opts.PacingMin
	}
	return c.opts.PacingMin + time.Duration(rand.Int64N(int64(span)))
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, d)
}

func (c *Controller) clockSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}
