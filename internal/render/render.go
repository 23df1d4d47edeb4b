package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
)

const (
	EmbedColor    = 16738740
	DefaultTitle  = "Weibo Post"
	DefaultSource = "Unknown"
	DefaultAuthor = "转发"
)

// VariantPreference lists resolution tiers from most to least preferred.
// Medium tiers come first: original files are often far over the attachment budget.
var VariantPreference = []string{"bmiddle", "large", "mw1024", "mw690", "mw480", "original"}

type Renderer struct {
	clock   clockwork.Clock
	dumpDir string
	logger  logger.Logger
}

// New creates a Renderer. dumpDir receives raw posts whose rich container
// could not be classified; empty disables the dump.
func New(clock clockwork.Clock, dumpDir string, log logger.Logger) *Renderer {
	return &Renderer{
		clock:   clock,
		dumpDir: dumpDir,
		logger:  log.WithComponent("Renderer"),
	}
}

// Classify maps a post to exactly one render variant.
// Priority: repost, attached media, video, page media, text.
func (r *Renderer) Classify(post domain.RawPost, ep domain.Endpoint) domain.RenderPlan {
	plan := domain.RenderPlan{
		PostID:   post.ID,
		Variant:  domain.VariantTextOnly,
		Envelope: r.envelope(post, ep),
	}

	if post.Quoted != nil {
		author := post.Quoted.Author
		if author == "" {
			author = DefaultAuthor
		}
		plan.Variant = domain.VariantRepost
		plan.Quote = &domain.Quote{
			Author:    "@" + author,
			Text:      post.Quoted.Text,
			ImageURLs: mediaURLs(*post.Quoted),
		}
		return plan
	}

	if urls := ResolveMedia(post.Media); len(urls) > 0 {
		plan.ImageURLs = urls
		plan.Variant = domain.VariantMultiImage
		if len(urls) == 1 {
			plan.Variant = domain.VariantSingleImage
		}
		return plan
	}

	if post.Video != nil {
		plan.Variant = domain.VariantVideo
		return plan
	}

	if post.PageMedia != nil && post.PageMedia.URL != "" {
		plan.Variant = domain.VariantSingleImage
		plan.ImageURLs = []string{post.PageMedia.URL}
		return plan
	}

	if post.RichContainer {
		r.logger.Warn("Unrecognised rich container, sending text only", "post_id", post.ID)
		r.dump(post)
	}
	return plan
}

func mediaURLs(post domain.RawPost) []string {
	if urls := ResolveMedia(post.Media); len(urls) > 0 {
		return urls
	}
	if post.PageMedia != nil && post.PageMedia.URL != "" {
		return []string{post.PageMedia.URL}
	}
	return nil
}

// ResolveMedia picks one URL per media ref following VariantPreference.
// Refs without any usable tier are skipped; order is preserved.
func ResolveMedia(refs []domain.MediaRef) []string {
	var urls []string
	for _, ref := range refs {
		for _, tier := range VariantPreference {
			if u := ref.Variants[tier]; u != "" {
				urls = append(urls, u)
				break
			}
		}
	}
	return urls
}

func (r *Renderer) envelope(post domain.RawPost, ep domain.Endpoint) domain.Envelope {
	title := ep.Title
	if title == "" {
		title = DefaultTitle
	}
	source := post.SourceLabel
	if source == "" {
		source = DefaultSource
	}
	tmpl := ep.LinkTemplate
	if tmpl == "" {
		tmpl = domain.DefaultLinkTemplate
	}

	return domain.Envelope{
		Title:     title,
		Body:      post.Text,
		Footer:    "from " + source,
		URL:       strings.ReplaceAll(tmpl, "{id}", post.StableID()),
		AvatarURL: ep.AvatarURL,
		Timestamp: ParseTimestamp(post.CreatedAt, r.clock.Now()),
		Color:     EmbedColor,
	}
}

func (r *Renderer) dump(post domain.RawPost) {
	if r.dumpDir == "" {
		return
	}
	if err := os.MkdirAll(r.dumpDir, 0o755); err != nil {
		r.logger.Warn("Failed to create dump dir", "dir", r.dumpDir, "error", err)
		return
	}

	data := post.Raw
	if len(data) == 0 {
		var err error
		if data, err = json.MarshalIndent(post, "", "  "); err != nil {
			return
		}
	}

	path := filepath.Join(r.dumpDir, fmt.Sprintf("debug_%d.json", post.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("Failed to dump post", "path", path, "error", err)
		return
	}
	r.logger.Info("Dumped unrecognised post", "path", path)
}
