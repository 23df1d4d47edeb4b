package media

import (
	"context"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
)

// Prepare downloads urls and reduces them to one attachment within maxBytes.
// Animated sources are shrunk separately for a follow-up message.
func (p *Pipeline) Prepare(ctx context.Context, scope *Scope, urls []string, maxBytes int64) Result {
	res := Result{Sources: len(urls)}
	if len(urls) == 0 {
		res.Status = StatusFailed
		return res
	}

	downloaded := p.DownloadAll(ctx, scope, urls)
	res.Downloaded = len(downloaded)
	if len(downloaded) == 0 {
		res.Status = StatusFailed
		return res
	}
	if len(downloaded) < len(urls) {
		p.logger.Warn("Proceeding with partial image set", "downloaded", len(downloaded), "requested", len(urls))
	}

	parts := make([]*domain.Asset, 0, len(downloaded))
	for _, a := range downloaded {
		if a.Animated {
			res.AnimatedSources++
			if small, ok, err := p.ShrinkAnimated(scope, a, maxBytes); err != nil {
				p.logger.Warn("Failed to shrink animated image", "url", a.SourceURL, "error", err)
			} else if ok {
				res.Animated = append(res.Animated, small)
			}
			parts = append(parts, a)
			continue
		}

		c, err := p.Compress(scope, a, maxBytes)
		if err != nil {
			p.logger.Warn("Failed to compress image, using original", "url", a.SourceURL, "error", err)
			c = a
		}
		parts = append(parts, c)
	}

	var primary *domain.Asset
	if len(parts) == 1 && parts[0].Animated && len(res.Animated) == 1 {
		primary = res.Animated[0]
	} else {
		var err error
		primary, err = p.Collage(scope, parts, maxBytes)
		if err != nil {
			p.logger.Warn("Failed to build collage", "error", err)
			res.Status = StatusFailed
			return res
		}
	}

	res.Asset = primary
	if primary.Size > maxBytes {
		res.Status = StatusTooLarge
		return res
	}
	res.Status = StatusOK
	return res
}
