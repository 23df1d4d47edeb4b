package media

import (
	"bytes"
	"context"
	"image/gif"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
)

var allowedExts = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".webp": "webp",
}

var formatExts = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
}

func newName(format string) string {
	ext, ok := formatExts[format]
	if !ok {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}

// ValidateURL checks scheme, host and extension before any network access.
func (p *Pipeline) ValidateURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeValidation, "parse image url")
	}
	if u.Scheme != "https" {
		return "", errors.Newf(errors.CodeValidation, "image url must be https: %s", raw)
	}

	host := strings.ToLower(u.Hostname())
	allowed := false
	for _, d := range p.opts.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", errors.Newf(errors.CodeValidation, "image host %q not allowed", host)
	}

	format, ok := allowedExts[strings.ToLower(path.Ext(u.Path))]
	if !ok {
		return "", errors.Newf(errors.CodeValidation, "image extension not allowed: %s", u.Path)
	}
	return format, nil
}

// Download fetches one image into the asset directory.
func (p *Pipeline) Download(ctx context.Context, scope *Scope, raw string) (*domain.Asset, error) {
	format, err := p.ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "build image request")
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	req.Header.Set("Referer", "https://weibo.com/")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransientFetch, "download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeTransientFetch, "image download returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, errors.Newf(errors.CodeValidation, "unexpected content type %q", ct)
	}
	limit := p.opts.MaxDownloadBytes
	if resp.ContentLength > limit {
		return nil, errors.Newf(errors.CodeResource, "image too large: %d bytes", resp.ContentLength)
	}

	dest, err := p.confine(newName(format))
	if err != nil {
		return nil, err
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "create image file")
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return nil, errors.WrapWithCode(err, errors.CodeTransientFetch, "read image body")
	}
	if n > limit {
		os.Remove(dest)
		return nil, errors.Newf(errors.CodeResource, "image exceeded %d bytes while streaming", limit)
	}

	a := &domain.Asset{
		Path:      dest,
		Size:      n,
		SourceURL: raw,
		Format:    format,
	}
	if format == "gif" {
		a.Animated = isAnimated(dest)
	}
	scope.track(a)
	return a, nil
}

func isAnimated(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	return err == nil && len(g.Image) > 1
}

// DownloadAll fetches urls on the worker pool. The result keeps input order
// and omits failed downloads.
func (p *Pipeline) DownloadAll(ctx context.Context, scope *Scope, urls []string) []*domain.Asset {
	results := make([]*domain.Asset, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			a, err := p.Download(ctx, scope, u)
			if err != nil {
				p.logger.Warn("Image download failed", "url", u, "error", err)
				return
			}
			results[i] = a
		})
		if err != nil {
			wg.Done()
			p.logger.Error("Failed to submit download to pool", "url", u, "error", err)
		}
	}
	wg.Wait()

	out := make([]*domain.Asset, 0, len(urls))
	for _, a := range results {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
