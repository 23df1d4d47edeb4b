package extractor

import (
	"regexp"
	"strings"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	uidPathRe = regexp.MustCompile(`/u/([0-9]+)`)
	uidHostRe = regexp.MustCompile(`weibo\.com/([0-9]+)`)
	digitsRe  = regexp.MustCompile(`^[0-9]+$`)
)

// UIDFromURL pulls the numeric account id out of a profile link.
func UIDFromURL(profileURL string) string {
	if m := uidPathRe.FindStringSubmatch(profileURL); m != nil {
		return m[1]
	}
	if m := uidHostRe.FindStringSubmatch(profileURL); m != nil {
		return m[1]
	}
	return ""
}

// IsJSONLike is a cheap shape check before a full parse.
func IsJSONLike(text string) bool {
	t := strings.TrimLeft(text, " \t\r\n")
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")
}

// ParseCapture unwraps the {ok,status,text} envelope returned by the in-page fetch.
func ParseCapture(result string) (string, error) {
	if !gjson.Valid(result) {
		return "", errors.Newf(errors.CodeTransientFetch, "capture script returned non-JSON")
	}
	env := gjson.Parse(result)
	if !env.Get("ok").Bool() {
		return "", errors.Newf(errors.CodeTransientFetch, "in-page fetch failed: %s", env.Get("error").String())
	}
	text := env.Get("text").String()
	if strings.TrimSpace(text) == "" || !IsJSONLike(text) {
		return "", errors.Newf(errors.CodeTransientFetch, "in-page fetch returned status %d without JSON", env.Get("status").Int())
	}
	return text, nil
}

// ParseSnapshot decodes a captured document into posts, keeping upstream order.
func ParseSnapshot(raw string, method Method) ([]domain.RawPost, error) {
	if !gjson.Valid(raw) {
		return nil, errors.Newf(errors.CodeStructuralParse, "snapshot is not valid JSON")
	}

	var list gjson.Result
	switch method {
	case MethodMobileDOM:
		list = gjson.Parse(raw)
	default:
		list = gjson.Get(raw, "data.list")
	}
	if !list.IsArray() {
		return nil, errors.Newf(errors.CodeStructuralParse, "snapshot has no post array")
	}

	items := list.Array()
	posts := make([]domain.RawPost, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		posts = append(posts, parsePost(item))
	}
	return posts, nil
}

func parsePost(item gjson.Result) domain.RawPost {
	post := domain.RawPost{
		ID:          item.Get("id").Int(),
		IDStr:       firstString(item, "idstr", "mid"),
		Text:        firstString(item, "text_raw", "text"),
		CreatedAt:   item.Get("created_at").String(),
		SourceLabel: item.Get("source").String(),
		Author:      item.Get("user.screen_name").String(),
		Media:       parseMedia(item),
		Raw:         []byte(item.Raw),
	}

	if rt := item.Get("retweeted_status"); rt.IsObject() {
		quoted := parsePost(rt)
		post.Quoted = &quoted
	}

	if pi := item.Get("page_info"); pi.Exists() {
		post.RichContainer = true
		if stream := firstString(pi, "media_info.stream_url", "media_info.mp4_720p_mp4", "media_info.mp4_sd_url"); stream != "" {
			post.Video = &domain.VideoRef{
				StreamURL: stream,
				Title:     firstString(pi, "media_info.name", "page_title"),
			}
		}
		if pic := pi.Get("page_pic"); pic.Exists() {
			url := pic.String()
			if pic.IsObject() {
				url = firstString(pic, "url", "pic")
			}
			if url != "" {
				post.PageMedia = &domain.PageMedia{URL: url}
			}
		}
	}

	return post
}

// parseMedia follows pic_ids when present, otherwise pic_infos in document order.
func parseMedia(item gjson.Result) []domain.MediaRef {
	infos := item.Get("pic_infos")
	if !infos.IsObject() {
		return nil
	}

	var refs []domain.MediaRef
	seen := map[string]bool{}
	add := func(id string, info gjson.Result) {
		if seen[id] || !info.IsObject() {
			return
		}
		seen[id] = true
		refs = append(refs, mediaRef(id, info))
	}

	for _, id := range item.Get("pic_ids").Array() {
		key := id.String()
		add(key, infos.Get(gjson.Escape(key)))
	}
	infos.ForEach(func(key, value gjson.Result) bool {
		add(key.String(), value)
		return true
	})
	return refs
}

func mediaRef(id string, info gjson.Result) domain.MediaRef {
	ref := domain.MediaRef{
		ID:       id,
		Kind:     domain.MediaPic,
		Variants: map[string]string{},
	}
	switch info.Get("type").String() {
	case "gif":
		ref.Kind = domain.MediaGIF
	case "livephoto":
		ref.Kind = domain.MediaLivePhoto
	}
	info.ForEach(func(tier, value gjson.Result) bool {
		if value.IsObject() {
			if url := value.Get("url").String(); url != "" {
				ref.Variants[tier.String()] = url
			}
		}
		return true
	})
	return ref
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
