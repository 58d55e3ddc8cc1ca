package scale

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// solidPNG returns a PNG-encoded w×h image filled with c.
func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestThumbnailDimensions(t *testing.T) {
	src := solidPNG(t, 1280, 800, color.White)

	out, err := Thumbnail(src, 160, 100, 70)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 160 || b.Dy() != 100 {
		t.Errorf("dimensions: got %dx%d, want 160x100", b.Dx(), b.Dy())
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	if _, err := Thumbnail([]byte("not an image"), 160, 100, 70); err == nil {
		t.Fatal("Thumbnail: got nil error for garbage input")
	}
}

func TestFitPillarboxesTallSource(t *testing.T) {
	// A tall white source in a wide box leaves black bars left and right.
	img := image.NewRGBA(image.Rect(0, 0, 100, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.White)
		}
	}

	dst := Fit(img, 160, 100)

	// Fitted content is 50px wide, centered: columns 0-54 and 105-159 are bars.
	r, g, b, _ := dst.At(0, 50).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("left bar pixel: got rgb(%d,%d,%d), want black", r, g, b)
	}
	r, g, b, _ = dst.At(80, 50).RGBA()
	if r == 0 && g == 0 && b == 0 {
		t.Error("center pixel: got black, want source content")
	}
}

func TestFitLetterboxesWideSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.White)
		}
	}

	dst := Fit(img, 160, 100)

	// Fitted content is 40px tall, centered: rows 0-29 and 70-99 are bars.
	r, g, b, _ := dst.At(80, 5).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("top bar pixel: got rgb(%d,%d,%d), want black", r, g, b)
	}
	r, g, b, _ = dst.At(80, 50).RGBA()
	if r == 0 && g == 0 && b == 0 {
		t.Error("center pixel: got black, want source content")
	}
}
