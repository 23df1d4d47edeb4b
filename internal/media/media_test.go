package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisePNG(t *testing.T, w, h int, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func noiseGIF(t *testing.T, w, h, frames int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	g := &gif.GIF{}
	for f := 0; f < frames; f++ {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		for i := range frame.Pix {
			frame.Pix[i] = uint8(rng.Intn(len(palette.Plan9)))
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

type fixture struct {
	srv      *httptest.Server
	pipeline *Pipeline
	files    map[string][]byte
}

func newFixture(t *testing.T, maxDownload int64) *fixture {
	t.Helper()
	fx := &fixture{files: map[string][]byte{}}

	fx.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://weibo.com/", r.Header.Get("Referer"))
		switch {
		case strings.HasPrefix(r.URL.Path, "/html/"):
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
			return
		case strings.HasPrefix(r.URL.Path, "/huge/"):
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", "999999999")
			w.WriteHeader(http.StatusOK)
			return
		}
		data, ok := fx.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch filepath.Ext(r.URL.Path) {
		case ".gif":
			w.Header().Set("Content-Type", "image/gif")
		default:
			w.Header().Set("Content-Type", "image/png")
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(fx.srv.Close)

	p, err := New(Options{
		Dir:              t.TempDir(),
		MaxDownloadBytes: maxDownload,
		AllowedDomains:   []string{"127.0.0.1"},
		Workers:          3,
		Timeout:          5 * time.Second,
		UserAgent:        "test-agent",
	}, fx.srv.Client(), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	fx.pipeline = p
	return fx
}

func (f *fixture) url(path string) string {
	return f.srv.URL + path
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestValidateURL(t *testing.T) {
	p := &Pipeline{opts: Options{AllowedDomains: []string{"sinaimg.cn", "weibo.com"}}}

	tests := []struct {
		url    string
		format string
		ok     bool
	}{
		{"https://wx1.sinaimg.cn/large/abc.jpg", "jpeg", true},
		{"https://sinaimg.cn/a/b.PNG", "png", true},
		{"https://weibo.com/x.webp?v=1", "webp", true},
		{"http://wx1.sinaimg.cn/large/abc.jpg", "", false},
		{"https://evil-sinaimg.cn/a.jpg", "", false},
		{"https://wx1.sinaimg.cn/large/abc.svg", "", false},
		{"https://example.com/a.jpg", "", false},
	}

	for _, tt := range tests {
		format, err := p.ValidateURL(tt.url)
		if tt.ok {
			assert.NoError(t, err, tt.url)
			assert.Equal(t, tt.format, format, tt.url)
		} else {
			assert.True(t, errors.IsValidation(err), tt.url)
		}
	}
}

func TestDownloadAndRelease(t *testing.T) {
	fx := newFixture(t, 1<<20)
	fx.files["/a.png"] = gradientPNG(t, 40, 30)

	scope := fx.pipeline.NewScope()
	a, err := fx.pipeline.Download(context.Background(), scope, fx.url("/a.png"))
	require.NoError(t, err)

	assert.Equal(t, "png", a.Format)
	assert.Equal(t, int64(len(fx.files["/a.png"])), a.Size)
	assert.Equal(t, fx.pipeline.Root(), filepath.Dir(a.Path))
	assert.Equal(t, 1, dirEntries(t, fx.pipeline.Root()))

	scope.Release()
	assert.Equal(t, 0, dirEntries(t, fx.pipeline.Root()))
}

func TestDownloadRejections(t *testing.T) {
	fx := newFixture(t, 1024)
	fx.files["/big.png"] = noisePNG(t, 64, 64, 1)
	scope := fx.pipeline.NewScope()
	ctx := context.Background()

	_, err := fx.pipeline.Download(ctx, scope, fx.url("/html/page.jpg"))
	assert.True(t, errors.IsValidation(err))

	_, err = fx.pipeline.Download(ctx, scope, fx.url("/huge/x.jpg"))
	assert.True(t, errors.IsResource(err))

	_, err = fx.pipeline.Download(ctx, scope, fx.url("/big.png"))
	assert.True(t, errors.IsResource(err))

	_, err = fx.pipeline.Download(ctx, scope, fx.url("/missing.png"))
	assert.True(t, errors.IsTransientFetch(err))

	assert.Equal(t, 0, dirEntries(t, fx.pipeline.Root()), "partial files are removed")
	assert.Equal(t, 0, scope.Len())
}

func TestDownloadAllKeepsOrderAndSkipsFailures(t *testing.T) {
	fx := newFixture(t, 1<<20)
	fx.files["/1.png"] = gradientPNG(t, 10, 10)
	fx.files["/3.png"] = gradientPNG(t, 30, 30)
	fx.files["/4.png"] = gradientPNG(t, 40, 40)

	scope := fx.pipeline.NewScope()
	defer scope.Release()

	got := fx.pipeline.DownloadAll(context.Background(), scope, []string{
		fx.url("/1.png"), fx.url("/2.png"), fx.url("/3.png"), fx.url("/4.png"),
	})

	require.Len(t, got, 3)
	assert.Equal(t, fx.url("/1.png"), got[0].SourceURL)
	assert.Equal(t, fx.url("/3.png"), got[1].SourceURL)
	assert.Equal(t, fx.url("/4.png"), got[2].SourceURL)
}

func writeTemp(t *testing.T, p *Pipeline, scope *Scope, data []byte, format string) *domain.Asset {
	t.Helper()
	a, err := p.writeAsset(scope, data, format, "test://"+format, false)
	require.NoError(t, err)
	return a
}

func TestCompressBounded(t *testing.T) {
	fx := newFixture(t, 1<<20)
	scope := fx.pipeline.NewScope()
	defer scope.Release()

	big := writeTemp(t, fx.pipeline, scope, noisePNG(t, 1500, 1200, 2), "png")

	const budget = 200 * 1024
	out, err := fx.pipeline.Compress(scope, big, budget)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Size, int64(budget))
	assert.Less(t, out.Size, big.Size)
	assert.Equal(t, "jpeg", out.Format)

	unreachable, err := fx.pipeline.Compress(scope, big, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, unreachable.Size, big.Size)

	small := writeTemp(t, fx.pipeline, scope, gradientPNG(t, 20, 20), "png")
	same, err := fx.pipeline.Compress(scope, small, budget)
	require.NoError(t, err)
	assert.Same(t, small, same)
}

func TestColumnsAndLayout(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 2, 3, 3, 3}, []int{
		Columns(1), Columns(2), Columns(3), Columns(4), Columns(5), Columns(6), Columns(9),
	})

	colW, rowH := Layout([]image.Point{{100, 50}, {80, 90}, {120, 40}, {60, 60}})
	assert.Equal(t, []int{120, 90}, colW)
	assert.Equal(t, []int{90, 60}, rowH)

	colW, rowH = Layout([]image.Point{{10, 10}, {20, 20}, {30, 30}, {40, 40}, {50, 50}})
	assert.Equal(t, []int{40, 50, 30}, colW)
	assert.Equal(t, []int{30, 50}, rowH)
}

func TestCollageGridWithinBudget(t *testing.T) {
	fx := newFixture(t, 1<<20)
	scope := fx.pipeline.NewScope()
	defer scope.Release()

	var parts []*domain.Asset
	for i := 0; i < 4; i++ {
		parts = append(parts, writeTemp(t, fx.pipeline, scope, gradientPNG(t, 100, 80), "png"))
	}

	out, err := fx.pipeline.Collage(scope, parts, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "png", out.Format)

	f, err := os.Open(out.Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 160, cfg.Height)

	single, err := fx.pipeline.Collage(scope, parts[:1], 1<<20)
	require.NoError(t, err)
	assert.Same(t, parts[0], single)
}

func TestCollageShrinksToBudget(t *testing.T) {
	fx := newFixture(t, 1<<20)
	scope := fx.pipeline.NewScope()
	defer scope.Release()

	var parts []*domain.Asset
	for i := 0; i < 3; i++ {
		parts = append(parts, writeTemp(t, fx.pipeline, scope, noisePNG(t, 300, 300, int64(i+10)), "png"))
	}

	const budget = 150 * 1024
	out, err := fx.pipeline.Collage(scope, parts, budget)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Size, int64(budget))
}

func TestShrinkAnimated(t *testing.T) {
	fx := newFixture(t, 1<<20)
	scope := fx.pipeline.NewScope()
	defer scope.Release()

	data := noiseGIF(t, 200, 200, 2)
	a := writeTemp(t, fx.pipeline, scope, data, "gif")
	a.Animated = true

	budget := a.Size / 3
	out, ok, err := fx.pipeline.ShrinkAnimated(scope, a, budget)
	require.NoError(t, err)
	require.True(t, ok)
	assert.LessOrEqual(t, out.Size, budget)
	assert.True(t, out.Animated)

	g, err := gif.DecodeAll(bytes.NewReader(mustRead(t, out.Path)))
	require.NoError(t, err)
	assert.Len(t, g.Image, 2)

	_, ok, err = fx.pipeline.ShrinkAnimated(scope, a, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestPrepareStatuses(t *testing.T) {
	fx := newFixture(t, 1<<20)
	fx.files["/a.png"] = gradientPNG(t, 60, 40)
	fx.files["/b.png"] = gradientPNG(t, 60, 40)
	fx.files["/noise.png"] = noisePNG(t, 200, 200, 3)
	ctx := context.Background()

	scope := fx.pipeline.NewScope()
	res := fx.pipeline.Prepare(ctx, scope, []string{fx.url("/a.png"), fx.url("/b.png")}, 1<<20)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 2, res.Downloaded)
	require.NotNil(t, res.Asset)
	scope.Release()
	assert.Equal(t, 0, dirEntries(t, fx.pipeline.Root()))

	scope = fx.pipeline.NewScope()
	res = fx.pipeline.Prepare(ctx, scope, []string{fx.url("/gone.png")}, 1<<20)
	assert.Equal(t, StatusFailed, res.Status)
	scope.Release()

	scope = fx.pipeline.NewScope()
	res = fx.pipeline.Prepare(ctx, scope, []string{fx.url("/noise.png")}, 64)
	assert.Equal(t, StatusTooLarge, res.Status)
	scope.Release()
	assert.Equal(t, 0, dirEntries(t, fx.pipeline.Root()))
}

func TestPrepareKeepsAnimatedForFollowUp(t *testing.T) {
	fx := newFixture(t, 1<<20)
	fx.files["/still.png"] = gradientPNG(t, 50, 50)
	fx.files["/anim.gif"] = noiseGIF(t, 60, 60, 3)

	scope := fx.pipeline.NewScope()
	defer scope.Release()

	res := fx.pipeline.Prepare(context.Background(), scope, []string{fx.url("/still.png"), fx.url("/anim.gif")}, 1<<20)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, res.AnimatedSources)
	require.Len(t, res.Animated, 1)
	assert.True(t, res.Animated[0].Animated)
}

func TestConfineRejectsEscape(t *testing.T) {
	fx := newFixture(t, 1<<20)

	_, err := fx.pipeline.confine("../outside.jpg")
	assert.True(t, errors.IsValidation(err))

	path, err := fx.pipeline.confine("ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.pipeline.Root(), "ok.jpg"), path)
}
