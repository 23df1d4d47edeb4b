package media

import (
	"bytes"
	"image"
	"image/gif"
	"os"

	"github.com/orgball2608/weibo-parser-discord-bot/internal/domain"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"golang.org/x/image/draw"
)

const (
	gifShrink     = 1.25
	maxGIFPasses  = 8
	minGIFDimSide = 16
)

// ShrinkAnimated downsizes every frame of an animated GIF until it fits.
// ok is false when maxBytes could not be reached within the pass budget.
func (p *Pipeline) ShrinkAnimated(scope *Scope, a *domain.Asset, maxBytes int64) (out *domain.Asset, ok bool, err error) {
	if a.Size <= maxBytes {
		return a, true, nil
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, false, errors.WrapWithCode(err, errors.CodeResource, "read gif")
	}
	src, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, false, errors.WrapWithCode(err, errors.CodeResource, "decode gif")
	}

	scale := 1.0
	for pass := 1; pass <= maxGIFPasses; pass++ {
		scale /= gifShrink
		w := int(float64(src.Config.Width) * scale)
		h := int(float64(src.Config.Height) * scale)
		if w < minGIFDimSide || h < minGIFDimSide {
			break
		}

		encoded, err := encodeGIF(scaleGIF(src, scale, w, h))
		if err != nil {
			return nil, false, errors.WrapWithCode(err, errors.CodeResource, "encode gif")
		}
		if int64(len(encoded)) <= maxBytes {
			out, err := p.writeAsset(scope, encoded, "gif", a.SourceURL, true)
			if err != nil {
				return nil, false, err
			}
			p.logger.Debug("Shrunk animated gif", "passes", pass, "from", a.Size, "to", out.Size)
			return out, true, nil
		}
	}

	return nil, false, nil
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*scale),
		int(float64(r.Min.Y)*scale),
		max(int(float64(r.Min.X)*scale)+1, int(float64(r.Max.X)*scale)),
		max(int(float64(r.Min.Y)*scale)+1, int(float64(r.Max.Y)*scale)),
	)
}

// scaleGIF resamples each frame, keeping its palette, offset and timing.
func scaleGIF(src *gif.GIF, scale float64, w, h int) *gif.GIF {
	out := &gif.GIF{
		Image:           make([]*image.Paletted, len(src.Image)),
		Delay:           src.Delay,
		LoopCount:       src.LoopCount,
		Disposal:        src.Disposal,
		BackgroundIndex: src.BackgroundIndex,
		Config:          src.Config,
	}
	out.Config.Width, out.Config.Height = w, h

	for i, frame := range src.Image {
		dst := image.NewPaletted(scaleRect(frame.Bounds(), scale), frame.Palette)
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
		out.Image[i] = dst
	}
	return out
}

func encodeGIF(g *gif.GIF) ([]byte, error) {
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
