package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

// createTestImage draws four solid quadrants so crops can be checked by color.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.RGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{255, 0, 0, 255}
			case y < height/2:
				c = color.RGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.RGBA{0, 0, 255, 255}
			default:
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func writeTestJPEG(t testing.TB, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(createTestImage(width, height), path, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func TestOpenAsset(t *testing.T) {
	path := writeTestJPEG(t, t.TempDir(), "photo.jpg", 400, 300)

	asset, err := OpenAsset(path)
	if err != nil {
		t.Fatalf("OpenAsset() error = %v", err)
	}
	if asset.PixelWidth != 400 || asset.PixelHeight != 300 {
		t.Errorf("asset size = %dx%d, want 400x300", asset.PixelWidth, asset.PixelHeight)
	}
	if asset.Source.Name() != path {
		t.Errorf("Source.Name() = %q, want %q", asset.Source.Name(), path)
	}
}

func TestOpenAssetDecodeError(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.jpg")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{corrupt, filepath.Join(dir, "missing.jpg")} {
		_, err := OpenAsset(path)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("OpenAsset(%s) error = %v, want DecodeError", filepath.Base(path), err)
		}
	}
}

func TestImagingCropper(t *testing.T) {
	asset, err := OpenAsset(writeTestJPEG(t, t.TempDir(), "photo.jpg", 400, 300))
	if err != nil {
		t.Fatal(err)
	}

	// Bottom right quadrant, inset to stay clear of JPEG bleeding at the seams.
	rect := CropRect{OriginX: 220, OriginY: 170, Width: 160, Height: 120}
	raster, err := NewImagingCropper().Crop(context.Background(), asset, rect, FormatJPEG)
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	if raster.Width() != 160 || raster.Height() != 120 {
		t.Errorf("raster size = %dx%d, want 160x120", raster.Width(), raster.Height())
	}
	if raster.Quality != masterQuality || raster.Format != FormatJPEG {
		t.Errorf("raster encoded as %s q%v", raster.Format, raster.Quality)
	}

	decoded, err := imaging.Decode(bytes.NewReader(raster.Data))
	if err != nil {
		t.Fatalf("cropped data does not decode: %v", err)
	}
	r, g, b, _ := decoded.At(80, 60).RGBA()
	if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
		t.Errorf("center pixel = (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestImagingCropperWebP(t *testing.T) {
	asset, err := OpenAsset(writeTestJPEG(t, t.TempDir(), "photo.jpg", 200, 200))
	if err != nil {
		t.Fatal(err)
	}

	raster, err := NewImagingCropper().Crop(context.Background(), asset, CropRect{Width: 100, Height: 100}, FormatWebP)
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raster.Data))
	if err != nil {
		t.Fatalf("webp output does not decode: %v", err)
	}
	if format != "webp" || img.Bounds().Dx() != 100 {
		t.Errorf("decoded %s %v, want 100px webp", format, img.Bounds())
	}
}

func TestImagingCropperInvalidRect(t *testing.T) {
	// No source: an out of bounds rect must fail before anything is decoded.
	asset := ImageAsset{PixelWidth: 400, PixelHeight: 300}

	for _, rect := range []CropRect{
		{OriginX: 300, OriginY: 0, Width: 200, Height: 100},
		{OriginX: -5, OriginY: 0, Width: 10, Height: 10},
		{OriginX: 0, OriginY: 0, Width: 0, Height: 10},
	} {
		raster, err := NewImagingCropper().Crop(context.Background(), asset, rect, FormatJPEG)
		var rectErr *InvalidRectError
		if !errors.As(err, &rectErr) {
			t.Errorf("Crop(%v) error = %v, want InvalidRectError", rect, err)
		}
		if raster != nil {
			t.Errorf("Crop(%v) returned a raster on failure", rect)
		}
	}
}

func TestImagingCropperSourceChanged(t *testing.T) {
	dir := t.TempDir()
	asset, err := OpenAsset(writeTestJPEG(t, dir, "photo.jpg", 400, 300))
	if err != nil {
		t.Fatal(err)
	}
	writeTestJPEG(t, dir, "photo.jpg", 100, 100)

	_, err = NewImagingCropper().Crop(context.Background(), asset, CropRect{Width: 50, Height: 50}, FormatJPEG)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Crop() error = %v, want DecodeError", err)
	}
}

func BenchmarkImagingCropper(b *testing.B) {
	asset, err := OpenAsset(writeTestJPEG(b, b.TempDir(), "photo.jpg", 1600, 1200))
	if err != nil {
		b.Fatal(err)
	}
	cropper := NewImagingCropper()
	rect := CropRect{OriginX: 200, OriginY: 0, Width: 1200, Height: 1200}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cropper.Crop(context.Background(), asset, rect, FormatJPEG); err != nil {
			b.Fatal(err)
		}
	}
}
