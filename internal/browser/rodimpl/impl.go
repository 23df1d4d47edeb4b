package rodimpl

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/retry"
	"go.uber.org/fx"
)

const stableFor = 500 * time.Millisecond

var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeMedia,
}

// RodLauncher starts a local Chromium per session through rod's launcher.
type RodLauncher struct {
	opts   browser.Options
	logger logger.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

var _ browser.Launcher = (*RodLauncher)(nil)

type Opts struct {
	fx.In
	LC     fx.Lifecycle
	Config *config.Config
	Logger logger.Logger
}

func New(opts Opts) *RodLauncher {
	l := &RodLauncher{
		opts:     browser.OptionsFromConfig(opts.Config),
		logger:   opts.Logger.WithComponent("Rod"),
		sessions: map[*Session]struct{}{},
	}
	opts.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			l.closeAll()
			return nil
		},
	})
	return l
}

func (l *RodLauncher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ln := launcher.New().Headless(!l.opts.ShowWindow)
	for _, arg := range browser.LaunchArgs {
		name, value, _ := strings.Cut(arg, "=")
		if value == "" {
			ln = ln.Set(flagName(name))
		} else {
			ln = ln.Set(flagName(name), value)
		}
	}

	u, err := ln.Launch()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "launch headless browser")
	}

	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		ln.Kill()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "connect to headless browser")
	}

	page, err := stealth.Page(br)
	if err != nil {
		_ = br.Close()
		ln.Kill()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create tab")
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      l.opts.UserAgent,
		AcceptLanguage: "zh-CN,zh;q=0.9,en;q=0.8",
	}); err != nil {
		_ = br.Close()
		ln.Kill()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "set user agent")
	}

	router := page.HijackRequests()
	for _, rt := range blockedResourceTypes {
		_ = router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()

	s := &Session{
		launcher: ln,
		browser:  br,
		page:     page,
		router:   router,
		opts:     l.opts,
		logger:   l.logger,
		release:  l.forget,
	}
	if err := s.setViewport(l.opts.Viewport); err != nil {
		_ = s.Close()
		return nil, err
	}

	l.mu.Lock()
	l.sessions[s] = struct{}{}
	l.mu.Unlock()

	l.logger.Debug("Browser session launched", "headless", !l.opts.ShowWindow)
	return s, nil
}

func (l *RodLauncher) forget(s *Session) {
	l.mu.Lock()
	delete(l.sessions, s)
	l.mu.Unlock()
}

func (l *RodLauncher) closeAll() {
	l.mu.Lock()
	open := make([]*Session, 0, len(l.sessions))
	for s := range l.sessions {
		open = append(open, s)
	}
	l.mu.Unlock()

	for _, s := range open {
		if err := s.Close(); err != nil {
			l.logger.Warn("Failed to close browser session", "error", err)
		}
	}
}

func flagName(name string) flags.Flag {
	return flags.Flag(name)
}

type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	opts     browser.Options
	logger   logger.Logger
	release  func(*Session)

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.page.Context(pingCtx).Eval(browser.PingScript); err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "page does not respond")
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) (browser.PageState, error) {
	navigate := func() error {
		navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
		defer cancel()
		p := s.page.Context(navCtx)
		if err := p.Navigate(url); err != nil {
			return err
		}
		return p.WaitStable(stableFor)
	}

	if err := retry.Do(ctx, s.logger, "PageNavigate", navigate, retry.DefaultConfig()); err != nil {
		return browser.PageState{}, errors.WrapWithCode(err, errors.CodeTransientFetch, "navigate to "+url)
	}

	p := s.page.Context(ctx)
	html, err := p.HTML()
	if err != nil {
		return browser.PageState{}, errors.WrapWithCode(err, errors.CodeTransientFetch, "get HTML from "+url)
	}
	info, err := p.Info()
	if err != nil {
		return browser.PageState{}, errors.WrapWithCode(err, errors.CodeTransientFetch, "read page info")
	}
	return browser.PageState{URL: info.URL, HTML: html}, nil
}

func (s *Session) Evaluate(ctx context.Context, script string) (string, error) {
	res, err := s.page.Context(ctx).Eval(script)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeTransientFetch, "evaluate script")
	}
	return res.Value.Str(), nil
}

func (s *Session) Rotate(ctx context.Context, vp browser.Viewport) error {
	if err := s.browser.Context(ctx).SetCookies(nil); err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "clear cookies")
	}
	if _, err := s.page.Context(ctx).Eval(browser.ClearStorageScript); err != nil {
		s.logger.Debug("Storage clear skipped", "error", err)
	}
	return s.setViewport(vp)
}

func (s *Session) setViewport(vp browser.Viewport) error {
	err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "set viewport")
	}
	return nil
}

// Close shuts down the page, the browser and its process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.router.Stop()
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
		if s.release != nil {
			s.release(s)
		}
	})
	return s.closeErr
}
