package main

import (
	"fmt"
	"image"
	"math"
)

// CropRect is a crop region in source pixel coordinates.
type CropRect struct {
	OriginX float64 `json:"x"`
	OriginY float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (r CropRect) String() string {
	return fmt.Sprintf("rect(x=%.2f,y=%.2f,w=%.2f,h=%.2f)", r.OriginX, r.OriginY, r.Width, r.Height)
}

// Within reports whether r has a positive size and lies inside
// [0,width]x[0,height], allowing eps of slack on every edge.
func (r CropRect) Within(width, height int, eps float64) bool {
	if !isFinite(r.OriginX) || !isFinite(r.OriginY) || !isFinite(r.Width) || !isFinite(r.Height) {
		return false
	}
	return r.Width > 0 && r.Height > 0 &&
		r.OriginX >= -eps && r.OriginY >= -eps &&
		r.OriginX+r.Width <= float64(width)+eps &&
		r.OriginY+r.Height <= float64(height)+eps
}

// Pixels snaps the rect onto the pixel grid. The result is at least one
// pixel on each axis and never leaves the image.
func (r CropRect) Pixels(width, height int) image.Rectangle {
	w := max(1, min(width, int(math.Round(r.Width))))
	h := max(1, min(height, int(math.Round(r.Height))))
	x := min(max(0, int(math.Round(r.OriginX))), width-w)
	y := min(max(0, int(math.Round(r.OriginY))), height-h)
	return image.Rect(x, y, x+w, y+h)
}

// ResolveCropRect maps the settled transform onto the source pixel grid.
//
// The frame is centered on the viewport origin, so its center in image space
// is the image center shifted by -translate/scale. The rect is sized
// frame/scale, squared for circles, clipped to the image, trimmed back to
// the required ratio and finally pushed inside the image bounds.
func ResolveCropRect(state TransformState, frame CropFrameProfile, imageWidth, imageHeight int) CropRect {
	imgW, imgH := float64(imageWidth), float64(imageHeight)

	scale := state.Scale
	if !isFinite(scale) || scale <= 0 {
		scale = minCoverScale(frame, imageWidth, imageHeight)
	}
	tx, ty := state.TranslateX, state.TranslateY
	if !isFinite(tx) {
		tx = 0
	}
	if !isFinite(ty) {
		ty = 0
	}

	centerX := imgW/2 - tx/scale
	centerY := imgH/2 - ty/scale
	width := frame.FrameWidth / scale
	height := frame.FrameHeight / scale

	if frame.Shape == ShapeCircle {
		side := math.Min(width, height)
		width, height = side, side
	}

	width = math.Min(width, imgW)
	height = math.Min(height, imgH)

	if ratio := frame.AspectRatio(); ratio > 0 {
		switch current := width / height; {
		case current > ratio:
			width = height * ratio
		case current < ratio:
			height = width / ratio
		}
	}

	return CropRect{
		OriginX: clamp(centerX-width/2, 0, imgW-width),
		OriginY: clamp(centerY-height/2, 0, imgH-height),
		Width:   width,
		Height:  height,
	}
}
