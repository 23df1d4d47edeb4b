package playwrightimpl

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/retry"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/fx"
)

// PlaywrightManager owns the playwright driver process and launches sessions on it.
type PlaywrightManager struct {
	pw     *playwright.Playwright
	opts   browser.Options
	logger logger.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

var _ browser.Launcher = (*PlaywrightManager)(nil)

type Opts struct {
	fx.In
	LC     fx.Lifecycle
	Config *config.Config
	Logger logger.Logger
}

// NewPlaywrightManager starts the playwright driver and stops it with the app.
func NewPlaywrightManager(opts Opts) (*PlaywrightManager, error) {
	log := opts.Logger.WithComponent("Playwright")
	log.Info("Initializing Playwright Manager...")

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "could not start playwright")
	}

	manager := &PlaywrightManager{
		pw:       pw,
		opts:     browser.OptionsFromConfig(opts.Config),
		logger:   log,
		sessions: map[*Session]struct{}{},
	}

	opts.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down Playwright...")
			manager.closeAll()
			if err := manager.pw.Stop(); err != nil {
				log.Error("Failed to stop playwright", "error", err)
				return err
			}
			log.Info("Playwright stopped successfully.")
			return nil
		},
	})
	log.Info("Playwright Manager initialized successfully.")
	return manager, nil
}

func (pm *PlaywrightManager) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(browser.LaunchArgs))
	for _, a := range browser.LaunchArgs {
		args = append(args, "--"+a)
	}

	br, err := pm.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!pm.opts.ShowWindow),
		Args:     args,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "could not launch browser")
	}

	brContext, err := br.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(pm.opts.UserAgent),
		Locale:    playwright.String("zh-CN"),
		Viewport: &playwright.Size{
			Width:  pm.opts.Viewport.Width,
			Height: pm.opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = br.Close()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "could not create browser context")
	}

	if err := setupRequestInterception(brContext); err != nil {
		_ = br.Close()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "failed to set up request interception")
	}

	page, err := brContext.NewPage()
	if err != nil {
		_ = br.Close()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "could not create new page")
	}

	s := &Session{
		browser: br,
		context: brContext,
		page:    page,
		opts:    pm.opts,
		logger:  pm.logger,
		release: pm.forget,
	}
	pm.mu.Lock()
	pm.sessions[s] = struct{}{}
	pm.mu.Unlock()

	pm.logger.Debug("Browser session launched", "headless", !pm.opts.ShowWindow)
	return s, nil
}

func (pm *PlaywrightManager) forget(s *Session) {
	pm.mu.Lock()
	delete(pm.sessions, s)
	pm.mu.Unlock()
}

func (pm *PlaywrightManager) closeAll() {
	pm.mu.Lock()
	open := make([]*Session, 0, len(pm.sessions))
	for s := range pm.sessions {
		open = append(open, s)
	}
	pm.mu.Unlock()

	for _, s := range open {
		if err := s.Close(); err != nil {
			pm.logger.Warn("Failed to close browser session", "error", err)
		}
	}
}

// setupRequestInterception blocks resources the feed capture never needs.
func setupRequestInterception(ctx playwright.BrowserContext) error {
	return ctx.Route("**/*", func(route playwright.Route) {
		switch route.Request().ResourceType() {
		case "image", "stylesheet", "font", "media":
			_ = route.Abort()
		default:
			_ = route.Continue()
		}
	})
}

type Session struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    browser.Options
	logger  logger.Logger
	release func(*Session)

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.browser.IsConnected() || s.page.IsClosed() {
		return errors.Newf(errors.CodeResource, "browser session is gone")
	}
	if _, err := s.page.Evaluate(browser.PingScript); err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "page does not respond")
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) (browser.PageState, error) {
	gotoOperation := func() error {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		return err
	}

	if err := retry.Do(ctx, s.logger, "PageGoto", gotoOperation, retry.DefaultConfig()); err != nil {
		return browser.PageState{}, errors.WrapWithCode(err, errors.CodeTransientFetch,
			fmt.Sprintf("could not goto page '%s' after retries", url))
	}

	html, err := s.page.Content()
	if err != nil {
		return browser.PageState{}, errors.WrapWithCode(err, errors.CodeTransientFetch, "read page content")
	}
	return browser.PageState{URL: s.page.URL(), HTML: html}, nil
}

func (s *Session) Evaluate(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := s.page.Evaluate(script)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeTransientFetch, "evaluate script")
	}
	str, ok := v.(string)
	if !ok {
		return "", errors.Newf(errors.CodeStructuralParse, "script returned %T, want string", v)
	}
	return str, nil
}

func (s *Session) Rotate(ctx context.Context, vp browser.Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.context.ClearCookies(); err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "clear cookies")
	}
	if _, err := s.page.Evaluate(browser.ClearStorageScript); err != nil {
		s.logger.Debug("Storage clear skipped", "error", err)
	}
	if err := s.page.SetViewportSize(vp.Width, vp.Height); err != nil {
		return errors.WrapWithCode(err, errors.CodeResource, "set viewport")
	}
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.context.Close(); err != nil {
			s.logger.Debug("Browser context close failed", "error", err)
		}
		s.closeErr = s.browser.Close()
		if s.release != nil {
			s.release(s)
		}
		debug.FreeOSMemory()
	})
	return s.closeErr
}
