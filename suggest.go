package main

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"fitcrop/crop"
)

// Suggester proposes a crop region for an image.
type Suggester interface {
	Suggest(ctx context.Context, handle string) (crop.PixelRegion, crop.Size, error)
}

// smartSuggester finds a square crop around the most interesting part of an
// image with smartcrop.
type smartSuggester struct {
	Root      string
	resampler imaging.ResampleFilter
}

func newSmartSuggester(root string) *smartSuggester {
	return &smartSuggester{Root: root, resampler: imaging.Lanczos}
}

// Suggest returns the suggested region and the intrinsic size it refers to.
func (s *smartSuggester) Suggest(ctx context.Context, handle string) (crop.PixelRegion, crop.Size, error) {
	p, err := resolvePath(s.Root, handle)
	if err != nil {
		return crop.PixelRegion{}, crop.Size{}, err
	}
	img, err := imaging.Open(p, imaging.AutoOrientation(true))
	if err != nil {
		return crop.PixelRegion{}, crop.Size{}, fmt.Errorf("failed to open image: %w", err)
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: s.resampler})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)
	go func() {
		best, err := analyzer.FindBestCrop(img, 1, 1)
		resultChan <- cropResult{crop: best, err: err}
	}()

	var best image.Rectangle
	select {
	case <-ctx.Done():
		return crop.PixelRegion{}, crop.Size{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return crop.PixelRegion{}, crop.Size{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		best = result.crop
	}

	b := img.Bounds()
	return crop.PixelRegion{
			OriginX: best.Min.X,
			OriginY: best.Min.Y,
			Width:   best.Dx(),
			Height:  best.Dy(),
		}, crop.Size{
			Width:  float64(b.Dx()),
			Height: float64(b.Dy()),
		}, nil
}

// resizer implements the smartcrop.Resizer interface with imaging.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}
