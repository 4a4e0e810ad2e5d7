package main

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
)

type stubCropper struct {
	raster *Raster
	err    error
	rect   CropRect
}

func (c *stubCropper) Crop(_ context.Context, _ ImageAsset, rect CropRect, _ Format) (*Raster, error) {
	c.rect = rect
	return c.raster, c.err
}

type stubCompressor struct {
	result *CompressionResult
	err    error
	called bool
}

func (c *stubCompressor) Compress(context.Context, *Raster, CompressionBudget) (*CompressionResult, error) {
	c.called = true
	return c.result, c.err
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	asset, err := OpenAsset(writeTestJPEG(t, dir, "photo.jpg", 800, 600))
	if err != nil {
		t.Fatal(err)
	}
	class, err := DefaultRegistry().Lookup("profile")
	if err != nil {
		t.Fatal(err)
	}
	class.Budget.TargetBytes = 4 * kib

	state := NewClampPolicy(class.Frame, asset.PixelWidth, asset.PixelHeight).Initial()
	result, err := NewPipeline().Run(context.Background(), asset, state, class)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FinalWidth != result.FinalHeight {
		t.Errorf("circle class produced %dx%d", result.FinalWidth, result.FinalHeight)
	}
	if result.FinalWidth > 600 {
		t.Errorf("FinalWidth = %d, want at most the 600px crop", result.FinalWidth)
	}
	if result.Asset.Format != FormatJPEG || result.FinalBytes != len(result.Asset.Data) {
		t.Errorf("asset = %s with %d bytes, result reports %d", result.Asset.Format, len(result.Asset.Data), result.FinalBytes)
	}
}

func TestPipelineResolvesRectBeforeCropping(t *testing.T) {
	cropper := &stubCropper{raster: &Raster{Image: image.NewGray(image.Rect(0, 0, 3000, 3000)), Format: FormatJPEG}}
	compressor := &stubCompressor{result: &CompressionResult{FinalBytes: 10}}
	p := &Pipeline{Cropper: cropper, Compressor: compressor}

	frame := circleFrame(400)
	asset := ImageAsset{PixelWidth: 4000, PixelHeight: 3000}
	state := NewClampPolicy(frame, 4000, 3000).Initial()

	if _, err := p.RunWith(context.Background(), asset, state, frame, DefaultBudget(100), FormatJPEG); err != nil {
		t.Fatalf("RunWith() error = %v", err)
	}
	want := CropRect{OriginX: 500, OriginY: 0, Width: 3000, Height: 3000}
	if !rectApproxEqual(cropper.rect, want, 1e-3) {
		t.Errorf("cropper got %v, want %v", cropper.rect, want)
	}
}

func TestPipelineErrors(t *testing.T) {
	decodeErr := &DecodeError{Source: "photo.jpg", Err: os.ErrNotExist}
	encodeErr := &EncodeError{Format: FormatJPEG, Err: errors.New("boom")}
	raster := &Raster{Image: image.NewGray(image.Rect(0, 0, 10, 10)), Format: FormatJPEG}

	t.Run("crop failure skips compression", func(t *testing.T) {
		compressor := &stubCompressor{}
		p := &Pipeline{Cropper: &stubCropper{err: decodeErr}, Compressor: compressor}

		_, err := p.Run(context.Background(), ImageAsset{PixelWidth: 10, PixelHeight: 10}, TransformState{}, AssetClass{Frame: circleFrame(10)})
		var target *DecodeError
		if !errors.As(err, &target) {
			t.Fatalf("Run() error = %v, want DecodeError", err)
		}
		if compressor.called {
			t.Error("compressor ran after a crop failure")
		}
	})

	t.Run("compression failure", func(t *testing.T) {
		p := &Pipeline{Cropper: &stubCropper{raster: raster}, Compressor: &stubCompressor{err: encodeErr}}

		_, err := p.Run(context.Background(), ImageAsset{PixelWidth: 10, PixelHeight: 10}, TransformState{}, AssetClass{Frame: circleFrame(10)})
		var target *EncodeError
		if !errors.As(err, &target) {
			t.Fatalf("Run() error = %v, want EncodeError", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		asset := ImageAsset{PixelWidth: 10, PixelHeight: 10, Source: fileSource(filepath.Join(t.TempDir(), "gone.jpg"))}

		_, err := NewPipeline().Run(context.Background(), asset, TransformState{}, AssetClass{Frame: circleFrame(10), Budget: DefaultBudget(100), Format: FormatJPEG})
		var target *DecodeError
		if !errors.As(err, &target) || !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("Run() error = %v, want DecodeError wrapping ErrNotExist", err)
		}
	})
}
