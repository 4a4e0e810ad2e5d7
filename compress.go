package main

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// retryShrink is applied to the dimensions after every attempt that is still
// over budget.
const retryShrink = 0.8

type ResizeFunc func(img image.Image, width, height int) image.Image

func resizeLanczos(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// CompressionResult is the outcome of a budget search. The asset belongs to
// the caller.
type CompressionResult struct {
	Asset       Asset   `json:"-"`
	FinalBytes  int     `json:"final_bytes"`
	FinalWidth  int     `json:"final_width"`
	FinalHeight int     `json:"final_height"`
	Quality     float64 `json:"quality"`
	// Attempts counts resize/re-encode operations performed.
	Attempts int `json:"attempts"`
}

// Degraded reports a result that is still over budget because the search
// ran out of attempts or hit a size floor.
func (r *CompressionResult) Degraded(budget CompressionBudget) bool {
	return r.FinalBytes > budget.TargetBytes
}

// Planner shrinks rasters under a byte budget.
type Planner struct {
	Encoders map[Format]Encoder
	Resize   ResizeFunc
}

func NewPlanner() *Planner {
	return &Planner{
		Encoders: DefaultEncoders(),
		Resize:   resizeLanczos,
	}
}

// Compress returns raster unchanged when it already fits. Otherwise it
// resizes to sqrt(target/size) of the original dimensions and re-encodes at
// the budget's start quality, then keeps shrinking dimensions by 0.8 and
// lowering quality by one step until the result fits, MaxAttempts encodes
// were spent or a size floor was reached. Without a fitting attempt the
// smallest encoding observed is returned.
func (p *Planner) Compress(ctx context.Context, raster *Raster, budget CompressionBudget) (*CompressionResult, error) {
	logger := log.Ctx(ctx).With().Str("format", string(raster.Format)).Int("target_bytes", budget.TargetBytes).Logger()

	best := &CompressionResult{
		Asset:       Asset{Data: raster.Data, Format: raster.Format},
		FinalBytes:  raster.Size(),
		FinalWidth:  raster.Width(),
		FinalHeight: raster.Height(),
		Quality:     raster.Quality,
	}
	if raster.Size() <= budget.TargetBytes {
		return best, nil
	}

	enc, ok := p.Encoders[raster.Format]
	if !ok {
		return nil, &EncodeError{Format: raster.Format, Err: fmt.Errorf("no encoder registered")}
	}

	maxAttempts := max(1, budget.MaxAttempts)
	origW, origH := raster.Width(), raster.Height()
	scale := math.Sqrt(float64(budget.TargetBytes) / float64(raster.Size()))
	quality := clamp(budget.StartQuality, budget.MinQuality, 1)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var floored bool
		scale, floored = p.floorScale(scale, origW, origH, budget)
		w := max(1, int(math.Round(float64(origW)*scale)))
		h := max(1, int(math.Round(float64(origH)*scale)))

		img := raster.Image
		if w != origW || h != origH {
			img = p.Resize(raster.Image, w, h)
		}
		data, err := encodeWith(enc, raster.Format, img, quality)
		if err != nil {
			return nil, err
		}

		logger.Debug().
			Int("attempt", attempt).
			Int("width", w).
			Int("height", h).
			Float64("quality", quality).
			Int("bytes", len(data)).
			Msg("compression attempt")

		if len(data) < best.FinalBytes || len(data) <= budget.TargetBytes {
			best = &CompressionResult{
				Asset:       Asset{Data: data, Format: raster.Format},
				FinalBytes:  len(data),
				FinalWidth:  w,
				FinalHeight: h,
				Quality:     quality,
			}
		}
		best.Attempts = attempt

		if len(data) <= budget.TargetBytes {
			return best, nil
		}
		if floored {
			logger.Debug().Int("attempt", attempt).Msg("size floor reached")
			break
		}

		scale *= retryShrink
		quality = math.Max(budget.MinQuality, quality-budget.QualityStep)
	}

	logger.Warn().
		Int("final_bytes", best.FinalBytes).
		Int("attempts", best.Attempts).
		Msg("compression budget not met, returning smallest attempt")
	return best, nil
}

// floorScale bounds a cumulative scale to the budget floors and never
// upscales. The flag reports whether a floor was applied.
func (p *Planner) floorScale(scale float64, width, height int, budget CompressionBudget) (float64, bool) {
	floor := math.Max(budget.MinScaleFactor, float64(budget.MinShortEdge)/float64(min(width, height)))
	if floor >= 1 {
		return 1, true
	}
	if scale <= floor {
		return floor, true
	}
	return math.Min(scale, 1), false
}
