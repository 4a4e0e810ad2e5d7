package main

import (
	"fmt"
	"math"
)

// DefaultMaxZoom is how far past the covering scale the user may zoom in.
const DefaultMaxZoom = 5.0

// TransformState describes how the source image is displayed relative to the
// crop frame. The frame is centered on the viewport origin; the image center
// sits at (TranslateX, TranslateY) and is drawn at Scale display units per
// source pixel.
type TransformState struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
}

func (s TransformState) String() string {
	return fmt.Sprintf("transform(scale=%.4f,tx=%.2f,ty=%.2f)", s.Scale, s.TranslateX, s.TranslateY)
}

// ClampPolicy computes the legal scale and translation ranges that keep the
// crop frame fully covered by image content.
type ClampPolicy struct {
	Frame       CropFrameProfile
	ImageWidth  int
	ImageHeight int
	// MaxZoom is the largest scale expressed as a multiple of MinScale.
	// Zero means DefaultMaxZoom.
	MaxZoom float64
}

func NewClampPolicy(frame CropFrameProfile, imageWidth, imageHeight int) ClampPolicy {
	return ClampPolicy{
		Frame:       frame,
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
		MaxZoom:     DefaultMaxZoom,
	}
}

// MinScale is the smallest scale at which the image still covers the frame
// on both axes.
func (p ClampPolicy) MinScale() float64 {
	return minCoverScale(p.Frame, p.ImageWidth, p.ImageHeight)
}

func (p ClampPolicy) MaxScale() float64 {
	zoom := p.MaxZoom
	if !(zoom >= 1) || math.IsInf(zoom, 0) {
		zoom = DefaultMaxZoom
	}
	return p.MinScale() * zoom
}

// Initial is the session starting state: covering scale, image centered.
func (p ClampPolicy) Initial() TransformState {
	return TransformState{Scale: p.MinScale()}
}

// Clamp constrains a candidate state into the legal range. Scale is clamped
// first and translation is then clamped against the resulting scale, so a
// single call is enough after a pinch. Clamp never fails.
func (p ClampPolicy) Clamp(s TransformState) TransformState {
	minScale, maxScale := p.MinScale(), p.MaxScale()

	scale := s.Scale
	if !isFinite(scale) || scale <= 0 {
		scale = minScale
	}
	scale = clamp(scale, minScale, maxScale)

	return TransformState{
		Scale:      scale,
		TranslateX: clampTranslation(s.TranslateX, p.Frame.FrameWidth, float64(p.ImageWidth)*scale),
		TranslateY: clampTranslation(s.TranslateY, p.Frame.FrameHeight, float64(p.ImageHeight)*scale),
	}
}

// Covers reports whether the frame lies fully inside the displayed image box,
// allowing eps of floating point slack.
func (p ClampPolicy) Covers(s TransformState, eps float64) bool {
	halfW := float64(p.ImageWidth) * s.Scale / 2
	halfH := float64(p.ImageHeight) * s.Scale / 2
	fw, fh := p.Frame.FrameWidth/2, p.Frame.FrameHeight/2
	return s.TranslateX-halfW <= -fw+eps &&
		s.TranslateX+halfW >= fw-eps &&
		s.TranslateY-halfH <= -fh+eps &&
		s.TranslateY+halfH >= fh-eps
}

func minCoverScale(frame CropFrameProfile, imageWidth, imageHeight int) float64 {
	if imageWidth <= 0 || imageHeight <= 0 {
		return 1
	}
	return math.Max(frame.FrameWidth/float64(imageWidth), frame.FrameHeight/float64(imageHeight))
}

func clampTranslation(t, frameSize, displayedSize float64) float64 {
	if !isFinite(t) || displayedSize <= frameSize {
		return 0
	}
	limit := (displayedSize - frameSize) / 2
	return clamp(t, -limit, limit)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
