package main

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

func (f Format) Extension() string {
	if f == FormatWebP {
		return "webp"
	}
	return "jpg"
}

// Encoder writes img at a quality in (0, 1].
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality float64) error
}

type EncoderFunc func(w io.Writer, img image.Image, quality float64) error

func (f EncoderFunc) Encode(w io.Writer, img image.Image, quality float64) error {
	return f(w, img, quality)
}

func encodeJPEG(w io.Writer, img image.Image, quality float64) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(qualityPercent(quality)))
}

func encodeWebP(w io.Writer, img image.Image, quality float64) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(qualityPercent(quality))})
}

// DefaultEncoders returns the encoder for every supported output format.
func DefaultEncoders() map[Format]Encoder {
	return map[Format]Encoder{
		FormatJPEG: EncoderFunc(encodeJPEG),
		FormatWebP: EncoderFunc(encodeWebP),
	}
}

func qualityPercent(q float64) int {
	return max(1, min(100, int(math.Round(q*100))))
}

func encodeWith(enc Encoder, format Format, img image.Image, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, quality); err != nil {
		return nil, &EncodeError{Format: format, Err: err}
	}
	return buf.Bytes(), nil
}

// Raster is a decoded image together with its current encoding.
type Raster struct {
	Image   image.Image
	Data    []byte
	Format  Format
	Quality float64
}

func (r *Raster) Width() int  { return r.Image.Bounds().Dx() }
func (r *Raster) Height() int { return r.Image.Bounds().Dy() }
func (r *Raster) Size() int   { return len(r.Data) }

// Asset is an encoded image ready to hand to an Uploader.
type Asset struct {
	Data   []byte
	Format Format
}

func (a Asset) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.Data)
	return int64(n), err
}

// ID is derived from the encoded bytes, so equal assets share a name.
func (a Asset) ID() string {
	return fmt.Sprintf("%x", md5.Sum(a.Data))
}
