package main

import (
	"errors"
	"fmt"
)

// DecodeError reports a source image that could not be opened or decoded.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidRectError means a crop rectangle escaped the image bounds. Seeing
// one indicates an upstream invariant violation.
type InvalidRectError struct {
	Rect          CropRect
	Width, Height int
}

func (e *InvalidRectError) Error() string {
	return fmt.Sprintf("%s is outside image bounds %dx%d", e.Rect, e.Width, e.Height)
}

// EncodeError reports a failed re-encode during cropping or compression.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is processing")
	ErrSessionClosed   = errors.New("session is closed")
)
