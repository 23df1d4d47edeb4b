package extractor

import (
	"strings"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
)

const (
	minPageBytes     = 1000
	minFeedlessBytes = 5000
)

var (
	errorMarkers = []string{"neterror", "redirectloop", "redirect loop", "error page", "无法访问"}
	feedMarkers  = []string{"weibo", "微博", "feed", "card", "profile"}
)

// ErrorPageReason returns why a loaded page is unusable, or "" when it looks like a feed.
func ErrorPageReason(state browser.PageState) string {
	url := strings.ToLower(state.URL)
	if strings.HasPrefix(url, "about:") {
		return "blank page"
	}

	html := strings.ToLower(state.HTML)
	for _, m := range errorMarkers {
		if strings.Contains(url, m) || strings.Contains(html, m) {
			return "error marker " + m
		}
	}

	if len(state.HTML) < minPageBytes {
		return "page too short"
	}
	if len(state.HTML) < minFeedlessBytes && !containsAny(html, feedMarkers) {
		return "no feed markers"
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
