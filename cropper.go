package main

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// masterQuality is the encode quality of a freshly cropped raster, before
// any budget is applied.
const masterQuality = 0.9

// Cropper cuts rect out of the asset's source image and returns it encoded
// in format.
type Cropper interface {
	Crop(ctx context.Context, asset ImageAsset, rect CropRect, format Format) (*Raster, error)
}

// ImagingCropper is an implementation of the Cropper interface
// using the disintegration/imaging library
type ImagingCropper struct {
	Encoders map[Format]Encoder
}

func NewImagingCropper() *ImagingCropper {
	return &ImagingCropper{Encoders: DefaultEncoders()}
}

// Crop validates rect against the asset bounds before touching the source,
// so an out of bounds rect fails without decoding anything. Nothing is
// returned on failure.
func (c *ImagingCropper) Crop(ctx context.Context, asset ImageAsset, rect CropRect, format Format) (*Raster, error) {
	if !rect.Within(asset.PixelWidth, asset.PixelHeight, rectEpsilon) {
		return nil, &InvalidRectError{Rect: rect, Width: asset.PixelWidth, Height: asset.PixelHeight}
	}
	enc, ok := c.Encoders[format]
	if !ok {
		return nil, &EncodeError{Format: format, Err: fmt.Errorf("no encoder registered")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := decodeAsset(asset)
	if err != nil {
		return nil, err
	}

	// Crop the image
	cropped := imaging.Crop(src, rect.Pixels(asset.PixelWidth, asset.PixelHeight))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodeWith(enc, format, cropped, masterQuality)
	if err != nil {
		return nil, err
	}

	return &Raster{
		Image:   cropped,
		Data:    data,
		Format:  format,
		Quality: masterQuality,
	}, nil
}

// rectEpsilon absorbs float error from ResolveCropRect on exact edges.
const rectEpsilon = 1e-6
