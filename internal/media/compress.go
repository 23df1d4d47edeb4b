package media

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxDimension     = 1024
	startQuality     = 70
	qualityStep      = 15
	minQuality       = 10
	maxQualityPasses = 10
	finalQuality     = 40
	minSide          = 100
)

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// flatten paints img over an opaque white background.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// resize scales img to w x h with Catmull-Rom resampling.
func resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// fitWithin returns the dimensions of w x h scaled down so neither side exceeds limit.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compress shrinks a still image toward maxBytes. It always terminates, and
// never yields a file larger than the input; the result may still exceed
// maxBytes when the budget is unreachable.
func (p *Pipeline) Compress(scope *Scope, a *domain.Asset, maxBytes int64) (*domain.Asset, error) {
	if a.Size <= maxBytes || a.Animated {
		return a, nil
	}

	src, err := decodeFile(a.Path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "decode image for compression")
	}

	img := flatten(src)
	if w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), maxDimension); w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = resize(img, w, h)
	}

	var best []byte
	quality := startQuality
	for attempt := 0; attempt < maxQualityPasses; attempt++ {
		data, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "encode jpeg")
		}
		if best == nil || len(data) < len(best) {
			best = data
		}
		if int64(len(data)) <= maxBytes || quality == minQuality {
			break
		}
		quality = max(minQuality, quality-qualityStep)
	}

	if int64(len(best)) > maxBytes {
		w, h := pixelBudget(img.Bounds().Dx(), img.Bounds().Dy(), maxBytes/3)
		data, err := encodeJPEG(resize(img, w, h), finalQuality)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "encode jpeg")
		}
		if len(data) < len(best) {
			best = data
		}
	}

	if int64(len(best)) >= a.Size {
		return a, nil
	}

	out, err := p.writeAsset(scope, best, "jpeg", a.SourceURL, false)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Compressed image", "from", a.Size, "to", out.Size, "budget", maxBytes)
	return out, nil
}

// pixelBudget scales w x h down to roughly target pixels, keeping each side at least minSide.
func pixelBudget(w, h int, target int64) (int, int) {
	total := float64(w) * float64(h)
	if target <= 0 || total <= float64(target) {
		return w, h
	}
	scale := math.Sqrt(float64(target) / total)
	return max(minSide, int(float64(w)*scale)), max(minSide, int(float64(h)*scale))
}
