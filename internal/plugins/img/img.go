// Package img compresses raster and vector images. Output is never larger
// than the input: when re-encoding does not help, the original bytes are
// kept.
package img

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/conneroisu/assetflow/internal/build"
)

const svgMediaType = "image/svg+xml"

// Optimizer re-encodes images by extension.
type Optimizer struct {
	jpegMin int
	jpegMax int
	min     *minify.M
}

// NewOptimizer creates an optimizer trying JPEG qualities from max down to
// min.
func NewOptimizer(jpegMin, jpegMax int) *Optimizer {
	m := minify.New()
	m.Add(svgMediaType, &svg.Minifier{})
	return &Optimizer{jpegMin: jpegMin, jpegMax: jpegMax, min: m}
}

// Chain returns the image chain. Compression goes through the content cache.
func (o *Optimizer) Chain() build.Chain {
	return build.Chain{
		build.Cached("imagemin", o.Optimize),
		build.Write(),
	}
}

// Optimize compresses a by format. Unknown formats pass through.
func (o *Optimizer) Optimize(ctx context.Context, a build.Asset) (build.Asset, error) {
	var (
		out []byte
		err error
	)

	switch strings.ToLower(path.Ext(a.Source)) {
	case ".png":
		out, err = o.png(a.Content)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(ctx, a.Content)
	case ".gif":
		out, err = o.gif(a.Content)
	case ".svg":
		out, err = o.svg(a.Content)
	default:
		return a, nil
	}
	if err != nil {
		return build.Asset{}, err
	}

	a.Content = smaller(out, a.Content)
	return a, nil
}

func (o *Optimizer) png(in []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// jpeg returns the encoding at the highest quality in range that is smaller
// than the input, or the input itself.
func (o *Optimizer) jpeg(ctx context.Context, in []byte) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("failed to decode jpeg: %w", err)
	}

	for q := o.jpegMax; q >= o.jpegMin; q-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		if buf.Len() < len(in) {
			return buf.Bytes(), nil
		}
	}
	return in, nil
}

func (o *Optimizer) gif(in []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("failed to decode gif: %w", err)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("failed to encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) svg(in []byte) ([]byte, error) {
	out, err := o.min.Bytes(svgMediaType, in)
	if err != nil {
		return nil, fmt.Errorf("failed to minify svg: %w", err)
	}
	return out, nil
}

func smaller(candidate, original []byte) []byte {
	if len(candidate) < len(original) {
		return candidate
	}
	return original
}
