package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Uploader persists a finished asset and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, name string, asset Asset) (string, error)
}

// Remover is implemented by uploaders that can take back a stored asset.
type Remover interface {
	Remove(ctx context.Context, location string) error
}

// FileSink stores assets in a local directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Upload(ctx context.Context, name string, asset Asset) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", s.Dir, err)
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	newName := fmt.Sprintf("%s-%s.%s", base, asset.ID(), asset.Format.Extension())
	path := filepath.Join(s.Dir, newName)

	// Written under a temp name and renamed, so readers never see a partial asset.
	tmp, err := os.CreateTemp(s.Dir, "."+newName+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create file for %s: %w", newName, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := asset.WriteTo(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write asset to file %s: %w", newName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write asset to file %s: %w", newName, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move asset into place %s: %w", path, err)
	}

	log.Ctx(ctx).Info().Str("path", path).Int("bytes", len(asset.Data)).Msg("asset saved")
	return path, nil
}

// Remove deletes an asset previously returned by Upload. Paths outside Dir
// are refused.
func (s FileSink) Remove(ctx context.Context, location string) error {
	rel, err := filepath.Rel(s.Dir, location)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to remove %s outside %s", location, s.Dir)
	}
	if err := os.Remove(location); err != nil {
		return fmt.Errorf("failed to remove asset %s: %w", location, err)
	}
	log.Ctx(ctx).Info().Str("path", location).Msg("asset removed")
	return nil
}
