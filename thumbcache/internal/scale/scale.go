// Package scale downscales screenshots into fixed-size thumbnails.
//
// The source image is fitted into the target box preserving aspect ratio,
// centered, with black letterbox/pillarbox bars on the non-fitting axis,
// then re-encoded as JPEG at the configured quality.
package scale

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // screenshots may arrive PNG-encoded

	xdraw "golang.org/x/image/draw"
)

// Thumbnail decodes src, fits it into a width×height box and returns the
// JPEG-encoded result. Quality is the JPEG quality, 1-100.
func Thumbnail(src []byte, width, height, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("scale: decode: %w", err)
	}
	return Encode(Fit(img, width, height), quality)
}

// Fit scales img to fit inside a width×height box, preserving aspect ratio
// and centering with black padding on the non-fitting axis.
func Fit(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	sb := img.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return dst
	}

	// Scale factor that fits both axes.
	fw := float64(width) / float64(sb.Dx())
	fh := float64(height) / float64(sb.Dy())
	f := fw
	if fh < fw {
		f = fh
	}

	w := int(float64(sb.Dx()) * f)
	h := int(float64(sb.Dy()) * f)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	x0 := (width - w) / 2
	y0 := (height - h) / 2
	target := image.Rect(x0, y0, x0+w, y0+h)

	xdraw.CatmullRom.Scale(dst, target, img, sb, xdraw.Src, nil)
	return dst
}

// Encode JPEG-encodes img at the given quality.
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("scale: encode: %w", err)
	}
	return buf.Bytes(), nil
}
