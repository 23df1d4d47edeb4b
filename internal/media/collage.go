package media

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"golang.org/x/image/draw"
)

const (
	collageShrink       = 0.8
	maxCollagePasses    = 10
	collageJPEGFallback = 60
)

// Columns returns the grid width used for n images.
func Columns(n int) int {
	switch {
	case n <= 1:
		return 1
	case n == 2:
		return 2
	case n == 3:
		return 3
	case n == 4:
		return 2
	default:
		return 3
	}
}

// Layout computes per-column widths and per-row heights for sizes laid out row-major.
func Layout(sizes []image.Point) (colW, rowH []int) {
	cols := Columns(len(sizes))
	rows := (len(sizes) + cols - 1) / cols
	colW = make([]int, cols)
	rowH = make([]int, rows)
	for i, s := range sizes {
		r, c := i/cols, i%cols
		colW[c] = max(colW[c], s.X)
		rowH[r] = max(rowH[r], s.Y)
	}
	return colW, rowH
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

// compose draws each image centered in its grid cell on a transparent canvas.
func compose(imgs []image.Image) *image.RGBA {
	sizes := make([]image.Point, len(imgs))
	for i, img := range imgs {
		sizes[i] = img.Bounds().Size()
	}
	colW, rowH := Layout(sizes)
	cols := len(colW)

	canvas := image.NewRGBA(image.Rect(0, 0, sum(colW), sum(rowH)))
	y := 0
	for r := range rowH {
		x := 0
		for c := range colW {
			i := r*cols + c
			if i >= len(imgs) {
				break
			}
			s := sizes[i]
			at := image.Pt(x+(colW[c]-s.X)/2, y+(rowH[r]-s.Y)/2)
			draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(s)}, imgs[i], imgs[i].Bounds().Min, draw.Src)
			x += colW[c]
		}
		y += rowH[r]
	}
	return canvas
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Collage merges assets into a single grid image. One asset is returned as is.
// The canvas is shrunk by a factor of 0.8 per pass for a bounded number of
// passes; if it still does not fit a JPEG rendition is tried and the smaller
// encoding kept. The result may exceed maxBytes.
func (p *Pipeline) Collage(scope *Scope, assets []*domain.Asset, maxBytes int64) (*domain.Asset, error) {
	if len(assets) == 0 {
		return nil, errors.Newf(errors.CodeValidation, "collage needs at least one image")
	}
	if len(assets) == 1 {
		return assets[0], nil
	}

	imgs := make([]image.Image, 0, len(assets))
	for _, a := range assets {
		img, err := decodeFile(a.Path)
		if err != nil {
			p.logger.Warn("Skipping undecodable image in collage", "path", a.Path, "error", err)
			continue
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return nil, errors.Newf(errors.CodeResource, "no decodable images for collage")
	}

	canvas := compose(imgs)
	data, err := encodePNG(canvas)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "encode collage")
	}
	format := "png"

	current := image.Image(canvas)
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	for attempt := 1; int64(len(data)) > maxBytes && attempt <= maxCollagePasses; attempt++ {
		factor := math.Pow(collageShrink, float64(attempt))
		sw, sh := max(1, int(float64(w)*factor)), max(1, int(float64(h)*factor))
		current = resize(canvas, sw, sh)
		data, err = encodePNG(current)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "encode collage")
		}
	}

	if int64(len(data)) > maxBytes {
		jpg, err := encodeJPEG(flatten(current), collageJPEGFallback)
		if err == nil && len(jpg) < len(data) {
			data, format = jpg, "jpeg"
		}
	}

	out, err := p.writeAsset(scope, data, format, "", false)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Built collage", "images", len(imgs), "format", format, "size", out.Size)
	return out, nil
}
