package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	classes := r.List()
	if len(classes) != len(builtinClasses) {
		t.Fatalf("List() returned %d classes, want %d", len(classes), len(builtinClasses))
	}
	for i, c := range classes {
		if err := c.Validate(); err != nil {
			t.Errorf("builtin class %s is invalid: %v", c.ID, err)
		}
		if i > 0 && classes[i-1].ID >= c.ID {
			t.Errorf("List() not sorted: %s before %s", classes[i-1].ID, c.ID)
		}
	}

	profile, err := r.Lookup("profile")
	if err != nil {
		t.Fatalf("Lookup(profile) error = %v", err)
	}
	if profile.Frame.Shape != ShapeCircle || profile.Frame.AspectRatio() != 1 {
		t.Errorf("profile frame = %+v, want circle", profile.Frame)
	}

	id, err := r.Lookup("student-id")
	if err != nil {
		t.Fatalf("Lookup(student-id) error = %v", err)
	}
	if got := id.Frame.AspectRatio(); !approxEqual(got, 0.75, 1e-9) {
		t.Errorf("student-id ratio = %v, want 0.75", got)
	}
}

func TestLookupUnknownClass(t *testing.T) {
	_, err := DefaultRegistry().Lookup("poster")
	if !errors.Is(err, ErrUnknownAssetClass) {
		t.Fatalf("Lookup() error = %v, want ErrUnknownAssetClass", err)
	}
}

func TestParseRegistryOverlay(t *testing.T) {
	data := []byte(`
classes:
  profile:
    budget:
      target_bytes: 262144
  banner:
    frame: {shape: fixed, frame_width: 400, frame_height: 100}
    budget: {target_bytes: 524288}
    format: webp
`)
	r, err := parseRegistry(data)
	if err != nil {
		t.Fatalf("parseRegistry() error = %v", err)
	}

	profile, _ := r.Lookup("profile")
	if profile.Budget.TargetBytes != 262144 {
		t.Errorf("profile target = %d, want 262144", profile.Budget.TargetBytes)
	}
	if profile.Budget.MaxAttempts != 5 || profile.Frame.Shape != ShapeCircle || profile.Format != FormatJPEG {
		t.Errorf("profile lost builtin fields: %+v", profile)
	}

	banner, err := r.Lookup("banner")
	if err != nil {
		t.Fatalf("Lookup(banner) error = %v", err)
	}
	if banner.ID != "banner" || banner.Format != FormatWebP {
		t.Errorf("banner = %+v", banner)
	}
	if got := banner.Frame.AspectRatio(); got != 4 {
		t.Errorf("banner ratio = %v, want 4", got)
	}
	if banner.Budget.StartQuality != 0.8 || banner.Budget.MinShortEdge != 50 {
		t.Errorf("banner budget did not get defaults: %+v", banner.Budget)
	}

	if _, err := r.Lookup("generic"); err != nil {
		t.Errorf("untouched builtin class missing: %v", err)
	}
}

func TestParseRegistryInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "classes: [\n"},
		{"new class without budget", "classes:\n  banner:\n    frame: {shape: free, frame_width: 10, frame_height: 10}\n"},
		{"oval circle", "classes:\n  profile:\n    frame: {frame_width: 300, frame_height: 200}\n"},
		{"unknown shape", "classes:\n  profile:\n    frame: {shape: hexagon}\n"},
		{"bad quality", "classes:\n  profile:\n    budget: {min_quality: 0.9, start_quality: 0.5}\n"},
		{"bad format", "classes:\n  profile:\n    format: gif\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRegistry([]byte(tt.yaml)); err == nil {
				t.Errorf("parseRegistry() succeeded, want error")
			}
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	if err := os.WriteFile(path, []byte("classes:\n  avatar:\n    frame: {shape: circle, frame_width: 96, frame_height: 96}\n    budget: {target_bytes: 32768}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if _, err := r.Lookup("avatar"); err != nil {
		t.Errorf("Lookup(avatar) error = %v", err)
	}

	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRegistry() succeeded on a missing file")
	}
}
