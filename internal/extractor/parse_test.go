package extractor

import (
	"strings"
	"testing"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/browser"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ajaxSnapshot = `{
  "ok": 1,
  "data": {
    "list": [
      {
        "id": 5012345678901234,
        "idstr": "5012345678901234",
        "text_raw": "newest",
        "created_at": "Sat Mar 15 10:00:00 +0800 2025",
        "source": "iPhone 15",
        "user": {"screen_name": "alpha"},
        "pic_ids": ["b2", "a1"],
        "pic_infos": {
          "a1": {"type": "pic", "thumbnail": {"url": "https://wx1.sinaimg.cn/thumb/a1.jpg"}, "large": {"url": "https://wx1.sinaimg.cn/large/a1.jpg"}},
          "b2": {"type": "gif", "bmiddle": {"url": "https://wx1.sinaimg.cn/bmiddle/b2.gif"}, "original": {"url": "https://wx1.sinaimg.cn/original/b2.gif"}}
        }
      },
      {
        "id": "5012345678900000",
        "text_raw": "video",
        "page_info": {"page_title": "clip", "media_info": {"stream_url": "https://f.video.weibocdn.com/x.mp4"}}
      },
      {
        "id": 3,
        "mid": "3",
        "text_raw": "repost",
        "retweeted_status": {
          "id": 2,
          "text_raw": "inner",
          "user": {"screen_name": "beta"},
          "pic_infos": {"q": {"large": {"url": "https://wx2.sinaimg.cn/large/q.jpg"}}}
        }
      },
      {"id": 4, "text_raw": "card", "page_info": {"page_pic": {"url": "https://wx3.sinaimg.cn/large/p.jpg"}}},
      {"id": 5, "text_raw": "odd card", "page_info": {"type": "mystery"}},
      "not an object"
    ]
  }
}`

func TestParseSnapshotAjax(t *testing.T) {
	posts, err := ParseSnapshot(ajaxSnapshot, MethodAjaxJSON)
	require.NoError(t, err)
	require.Len(t, posts, 5)

	first := posts[0]
	assert.Equal(t, int64(5012345678901234), first.ID)
	assert.Equal(t, "5012345678901234", first.StableID())
	assert.Equal(t, "newest", first.Text)
	assert.Equal(t, "iPhone 15", first.SourceLabel)
	assert.Equal(t, "alpha", first.Author)
	assert.False(t, first.RichContainer)
	require.Len(t, first.Media, 2)
	assert.Equal(t, "b2", first.Media[0].ID, "pic_ids order wins")
	assert.Equal(t, domain.MediaGIF, first.Media[0].Kind)
	assert.Equal(t, "https://wx1.sinaimg.cn/bmiddle/b2.gif", first.Media[0].Variants["bmiddle"])
	assert.Equal(t, domain.MediaPic, first.Media[1].Kind)
	assert.Len(t, first.Media[1].Variants, 2)
	assert.NotEmpty(t, first.Raw)

	video := posts[1]
	assert.Equal(t, int64(5012345678900000), video.ID)
	assert.True(t, video.RichContainer)
	require.NotNil(t, video.Video)
	assert.Equal(t, "https://f.video.weibocdn.com/x.mp4", video.Video.StreamURL)
	assert.Equal(t, "clip", video.Video.Title)

	repost := posts[2]
	require.NotNil(t, repost.Quoted)
	assert.Equal(t, "beta", repost.Quoted.Author)
	assert.Equal(t, "inner", repost.Quoted.Text)
	require.Len(t, repost.Quoted.Media, 1)
	assert.Equal(t, "3", repost.StableID())

	card := posts[3]
	require.NotNil(t, card.PageMedia)
	assert.Equal(t, "https://wx3.sinaimg.cn/large/p.jpg", card.PageMedia.URL)

	odd := posts[4]
	assert.True(t, odd.RichContainer)
	assert.Nil(t, odd.Video)
	assert.Nil(t, odd.PageMedia)
}

func TestParseSnapshotMobile(t *testing.T) {
	raw := `[{"id":"77","idstr":"77","text_raw":"m","pic_ids":["p0"],"pic_infos":{"p0":{"large":{"url":"https://wx4.sinaimg.cn/large/a.jpg"}}}}]`

	posts, err := ParseSnapshot(raw, MethodMobileDOM)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(77), posts[0].ID)
	assert.Len(t, posts[0].Media, 1)
}

func TestParseSnapshotStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		method Method
	}{
		{"invalid json", `{"data":`, MethodAjaxJSON},
		{"missing list", `{"data":{"items":[]}}`, MethodAjaxJSON},
		{"list not array", `{"data":{"list":{}}}`, MethodAjaxJSON},
		{"mobile object", `{"list":[]}`, MethodMobileDOM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot(tt.raw, tt.method)
			require.Error(t, err)
			assert.True(t, errors.IsStructuralParse(err))
		})
	}
}

func TestParseCapture(t *testing.T) {
	text, err := ParseCapture(`{"ok":true,"status":200,"text":"{\"data\":{}}"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, text)

	for _, bad := range []string{
		`{"ok":false,"error":"TypeError: Failed to fetch"}`,
		`{"ok":true,"status":302,"text":"<html>login</html>"}`,
		`{"ok":true,"status":200,"text":""}`,
		`not json`,
	} {
		_, err := ParseCapture(bad)
		assert.True(t, errors.IsTransientFetch(err), bad)
	}
}

func TestUIDFromURL(t *testing.T) {
	assert.Equal(t, "6593199887", UIDFromURL("https://weibo.com/u/6593199887"))
	assert.Equal(t, "6593199887", UIDFromURL("https://m.weibo.cn/u/6593199887?tab=1"))
	assert.Equal(t, "12345", UIDFromURL("https://weibo.com/12345"))
	assert.Empty(t, UIDFromURL("https://weibo.com/genshin"))
}

func TestErrorPageReason(t *testing.T) {
	feed := strings.Repeat("<div class=\"card\">weibo</div>", 300)

	tests := []struct {
		name  string
		state browser.PageState
		bad   bool
	}{
		{"feed", browser.PageState{URL: "https://weibo.com/u/1", HTML: feed}, false},
		{"about blank", browser.PageState{URL: "about:blank", HTML: feed}, true},
		{"neterror url", browser.PageState{URL: "chrome-error://neterror", HTML: feed}, true},
		{"redirect loop body", browser.PageState{URL: "https://weibo.com/u/1", HTML: feed + "Redirect Loop"}, true},
		{"blocked", browser.PageState{URL: "https://weibo.com/u/1", HTML: feed + "无法访问"}, true},
		{"short", browser.PageState{URL: "https://weibo.com/u/1", HTML: "<html>weibo</html>"}, true},
		{"mid size without markers", browser.PageState{URL: "https://weibo.com/u/1", HTML: strings.Repeat("x", 3000)}, true},
		{"mid size with marker", browser.PageState{URL: "https://weibo.com/u/1", HTML: strings.Repeat("x", 3000) + "微博"}, false},
		{"large without markers", browser.PageState{URL: "https://weibo.com/u/1", HTML: strings.Repeat("x", 6000)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.bad, ErrorPageReason(tt.state) != "")
		})
	}
}
