package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrUnknownAssetClass = errors.New("unknown asset class")

type Shape string

const (
	ShapeCircle     Shape = "circle"
	ShapeFixedRatio Shape = "fixed"
	ShapeFree       Shape = "free"
)

// CropFrameProfile is the crop frame geometry for one asset class, in
// viewport units.
type CropFrameProfile struct {
	Shape       Shape   `json:"shape" yaml:"shape"`
	FrameWidth  float64 `json:"frame_width" yaml:"frame_width"`
	FrameHeight float64 `json:"frame_height" yaml:"frame_height"`
	// Ratio is the required width/height of the crop for fixed frames.
	// Zero derives it from the frame size.
	Ratio float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
}

// AspectRatio returns the width/height ratio the resolved crop must have, or
// 0 when the shape does not constrain it.
func (f CropFrameProfile) AspectRatio() float64 {
	switch f.Shape {
	case ShapeCircle:
		return 1
	case ShapeFixedRatio:
		if f.Ratio > 0 {
			return f.Ratio
		}
		return f.FrameWidth / f.FrameHeight
	default:
		return 0
	}
}

func (f CropFrameProfile) Validate() error {
	switch f.Shape {
	case ShapeCircle, ShapeFixedRatio, ShapeFree:
	default:
		return fmt.Errorf("unknown frame shape %q", f.Shape)
	}
	if !(f.FrameWidth > 0) || !(f.FrameHeight > 0) {
		return fmt.Errorf("frame size must be positive, got %gx%g", f.FrameWidth, f.FrameHeight)
	}
	if f.Shape == ShapeCircle && f.FrameWidth != f.FrameHeight {
		return fmt.Errorf("circle frame must be square, got %gx%g", f.FrameWidth, f.FrameHeight)
	}
	if f.Ratio < 0 {
		return fmt.Errorf("frame ratio must not be negative, got %g", f.Ratio)
	}
	return nil
}

// CompressionBudget bounds the size search of the CompressionPlanner.
// Qualities are in (0, 1].
type CompressionBudget struct {
	TargetBytes    int     `json:"target_bytes" yaml:"target_bytes"`
	MaxAttempts    int     `json:"max_attempts" yaml:"max_attempts"`
	StartQuality   float64 `json:"start_quality" yaml:"start_quality"`
	QualityStep    float64 `json:"quality_step" yaml:"quality_step"`
	MinQuality     float64 `json:"min_quality" yaml:"min_quality"`
	MinScaleFactor float64 `json:"min_scale_factor" yaml:"min_scale_factor"`
	MinShortEdge   int     `json:"min_short_edge" yaml:"min_short_edge"`
}

func DefaultBudget(targetBytes int) CompressionBudget {
	return CompressionBudget{
		TargetBytes:    targetBytes,
		MaxAttempts:    5,
		StartQuality:   0.8,
		QualityStep:    0.1,
		MinQuality:     0.3,
		MinScaleFactor: 0.05,
		MinShortEdge:   50,
	}
}

func (b CompressionBudget) Validate() error {
	if b.TargetBytes <= 0 {
		return fmt.Errorf("target_bytes must be positive, got %d", b.TargetBytes)
	}
	if b.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", b.MaxAttempts)
	}
	if b.MinQuality <= 0 || b.MinQuality > 1 || b.StartQuality < b.MinQuality || b.StartQuality > 1 {
		return fmt.Errorf("qualities must satisfy 0 < min_quality <= start_quality <= 1, got %g/%g", b.MinQuality, b.StartQuality)
	}
	if b.QualityStep < 0 {
		return fmt.Errorf("quality_step must not be negative, got %g", b.QualityStep)
	}
	if b.MinScaleFactor <= 0 || b.MinScaleFactor > 1 {
		return fmt.Errorf("min_scale_factor must be in (0, 1], got %g", b.MinScaleFactor)
	}
	if b.MinShortEdge < 1 {
		return fmt.Errorf("min_short_edge must be positive, got %d", b.MinShortEdge)
	}
	return nil
}

// AssetClass ties an identifier to its frame, budget and output format.
type AssetClass struct {
	ID     string            `json:"id" yaml:"-"`
	Frame  CropFrameProfile  `json:"frame" yaml:"frame"`
	Budget CompressionBudget `json:"budget" yaml:"budget"`
	Format Format            `json:"format" yaml:"format"`
}

func (c AssetClass) Validate() error {
	if c.ID == "" {
		return errors.New("asset class id is empty")
	}
	if err := c.Frame.Validate(); err != nil {
		return fmt.Errorf("class %s: %w", c.ID, err)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("class %s: %w", c.ID, err)
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return fmt.Errorf("class %s: %w", c.ID, err)
	}
	return nil
}

const (
	kib = 1 << 10
	mib = 1 << 20
)

var builtinClasses = map[string]AssetClass{
	"profile": {
		Frame:  CropFrameProfile{Shape: ShapeCircle, FrameWidth: 300, FrameHeight: 300},
		Budget: DefaultBudget(512 * kib),
		Format: FormatJPEG,
	},
	"circle-icon": {
		Frame:  CropFrameProfile{Shape: ShapeCircle, FrameWidth: 160, FrameHeight: 160},
		Budget: DefaultBudget(128 * kib),
		Format: FormatWebP,
	},
	"student-id": {
		Frame:  CropFrameProfile{Shape: ShapeFixedRatio, FrameWidth: 300, FrameHeight: 400, Ratio: 3.0 / 4.0},
		Budget: DefaultBudget(1 * mib),
		Format: FormatJPEG,
	},
	"generic": {
		Frame:  CropFrameProfile{Shape: ShapeFree, FrameWidth: 360, FrameHeight: 270},
		Budget: DefaultBudget(2 * mib),
		Format: FormatJPEG,
	},
}

// Registry maps asset class identifiers to their configuration.
type Registry struct {
	classes map[string]AssetClass
}

func DefaultRegistry() *Registry {
	r := &Registry{classes: make(map[string]AssetClass, len(builtinClasses))}
	for id, c := range builtinClasses {
		c.ID = id
		r.classes[id] = c
	}
	return r
}

// LoadRegistry overlays the classes declared in a YAML file onto the
// built-in ones. Fields left out of a declared class keep the built-in
// value, or the defaults for a new class.
//
//	classes:
//	  profile:
//	    budget:
//	      target_bytes: 262144
//	  banner:
//	    frame: {shape: fixed, frame_width: 400, frame_height: 100}
//	    budget: {target_bytes: 524288}
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classes file %s: %w", path, err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Classes map[string]yaml.Node `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse classes file: %w", err)
	}

	r := DefaultRegistry()
	for id, node := range doc.Classes {
		class, ok := r.classes[id]
		if !ok {
			class = AssetClass{Budget: DefaultBudget(0), Format: FormatJPEG}
		}
		if err := node.Decode(&class); err != nil {
			return nil, fmt.Errorf("failed to parse class %s: %w", id, err)
		}
		class.ID = id
		r.classes[id] = class
	}

	for _, c := range r.classes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Lookup(id string) (AssetClass, error) {
	c, ok := r.classes[id]
	if !ok {
		return AssetClass{}, fmt.Errorf("%w %q", ErrUnknownAssetClass, id)
	}
	return c, nil
}

// List returns every class ordered by id.
func (r *Registry) List() []AssetClass {
	out := make([]AssetClass, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
