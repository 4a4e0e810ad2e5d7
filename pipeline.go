package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Compressor is satisfied by *Planner.
type Compressor interface {
	Compress(ctx context.Context, raster *Raster, budget CompressionBudget) (*CompressionResult, error)
}

// Pipeline turns a settled transform into a budget-bounded asset.
type Pipeline struct {
	Cropper    Cropper
	Compressor Compressor
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		Cropper:    NewImagingCropper(),
		Compressor: NewPlanner(),
	}
}

// Run executes the pipeline with the frame, budget and format of an asset
// class.
func (p *Pipeline) Run(ctx context.Context, asset ImageAsset, state TransformState, class AssetClass) (*CompressionResult, error) {
	return p.RunWith(ctx, asset, state, class.Frame, class.Budget, class.Format)
}

// RunWith resolves the crop, crops and compresses, in that order. The first
// failure aborts the run and is returned as is, so callers can match
// *DecodeError, *InvalidRectError and *EncodeError with errors.As.
func (p *Pipeline) RunWith(ctx context.Context, asset ImageAsset, state TransformState, frame CropFrameProfile, budget CompressionBudget, format Format) (*CompressionResult, error) {
	logger := log.Ctx(ctx)

	rect := ResolveCropRect(state, frame, asset.PixelWidth, asset.PixelHeight)
	logger.Debug().Stringer("state", state).Stringer("rect", rect).Msg("resolved crop")

	raster, err := p.Cropper.Crop(ctx, asset, rect, format)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Int("width", raster.Width()).
		Int("height", raster.Height()).
		Int("bytes", raster.Size()).
		Msg("cropped")

	result, err := p.Compressor.Compress(ctx, raster, budget)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("compressor returned no result")
	}

	logger.Info().
		Int("final_bytes", result.FinalBytes).
		Int("final_width", result.FinalWidth).
		Int("final_height", result.FinalHeight).
		Int("attempts", result.Attempts).
		Bool("degraded", result.Degraded(budget)).
		Msg("pipeline finished")
	return result, nil
}
