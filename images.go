package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// SourceHandle gives repeatable read access to an encoded source image.
type SourceHandle interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileSource string

func (f fileSource) Name() string                 { return string(f) }
func (f fileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// ImageAsset is a picked photo. The dimensions are those of the decoded,
// orientation-corrected raster, which is what the user frames.
type ImageAsset struct {
	PixelWidth  int
	PixelHeight int
	Source      SourceHandle
}

// OpenAsset decodes the file once to learn its exact displayed dimensions.
func OpenAsset(path string) (ImageAsset, error) {
	asset := ImageAsset{Source: fileSource(path)}
	img, err := decodeSource(asset.Source)
	if err != nil {
		return ImageAsset{}, err
	}
	b := img.Bounds()
	asset.PixelWidth, asset.PixelHeight = b.Dx(), b.Dy()
	return asset, nil
}

func decodeSource(src SourceHandle) (image.Image, error) {
	r, err := src.Open()
	if err != nil {
		return nil, &DecodeError{Source: src.Name(), Err: err}
	}
	defer r.Close()

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: src.Name(), Err: err}
	}
	return img, nil
}

// decodeAsset decodes the source and checks it still matches the dimensions
// the session was framed against.
func decodeAsset(asset ImageAsset) (image.Image, error) {
	if asset.Source == nil {
		return nil, &DecodeError{Source: "<nil>", Err: fmt.Errorf("asset has no source")}
	}
	img, err := decodeSource(asset.Source)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != asset.PixelWidth || b.Dy() != asset.PixelHeight {
		return nil, &DecodeError{
			Source: asset.Source.Name(),
			Err: fmt.Errorf("decoded size %dx%d does not match asset size %dx%d",
				b.Dx(), b.Dy(), asset.PixelWidth, asset.PixelHeight),
		}
	}
	return img, nil
}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

// walkImages lists the pickable images under rootPath. skipDir is excluded
// so that generated output is not offered as a source.
func walkImages(ctx context.Context, rootPath, skipDir string) (Directory, error) {
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir != "" && path == skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Name:       relPath,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		w, h, err := readImageDimensions(filepath.Join(rootPath, files[i].Name))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = ImageInfo{
			Width:  w,
			Height: h,
		}
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

// readImageDimensions reads the stored dimensions from the header only. EXIF
// rotation is not applied, so this is for listing, not for framing.
func readImageDimensions(filePath string) (width, height int, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
