package browser

import (
	"context"
	"time"

	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
)

//go:generate go run go.uber.org/mock/mockgen -source=browser.go -destination=mocks/mock.go

// PageState is what a navigation left behind.
type PageState struct {
	URL  string
	HTML string
}

type Viewport struct {
	Width  int
	Height int
}

// Viewports are the desktop sizes a rotated session picks from.
var Viewports = []Viewport{
	{1920, 1080},
	{1366, 768},
	{1440, 900},
	{1536, 864},
	{1280, 720},
	{1600, 900},
}

// Session is one browser with a single open page.
type Session interface {
	// Ping reports whether the page still answers script calls.
	Ping(ctx context.Context) error
	Navigate(ctx context.Context, url string) (PageState, error)
	// Evaluate runs a JS function expression and returns its string result.
	// Promises are awaited.
	Evaluate(ctx context.Context, script string) (string, error)
	// Rotate clears cookies and storage and switches the viewport.
	Rotate(ctx context.Context, vp Viewport) error
	Close() error
}

// Launcher starts fresh sessions. Implementations own the driver process.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Options struct {
	ShowWindow        bool
	UserAgent         string
	NavigationTimeout time.Duration
	Viewport          Viewport
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ShowWindow:        cfg.Browser.ShowWindow,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		Viewport:          Viewports[0],
	}
}

// LaunchArgs are the Chromium switches used by every driver.
var LaunchArgs = []string{
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-dev-shm-usage",
	"disable-accelerated-2d-canvas",
	"disable-blink-features=AutomationControlled",
	"no-first-run",
	"disable-gpu",
}

// ClearStorageScript wipes local and session storage of the current origin.
const ClearStorageScript = `() => {
	try { window.localStorage.clear(); } catch (e) {}
	try { window.sessionStorage.clear(); } catch (e) {}
	return "";
}`

const PingScript = `() => document.readyState`
