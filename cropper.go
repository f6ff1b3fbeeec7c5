package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"fitcrop/crop"
)

var errEmptyCrop = errors.New("crop rectangle is outside image bounds")

// ImagingCropper crops images with the disintegration/imaging library.
type ImagingCropper struct {
	JPEGQuality int
	WebPQuality float32
	// WebPLossless writes lossless WebP, which matches the full-quality PNG default.
	WebPLossless bool
}

// NewImagingCropper creates a new instance of ImagingCropper
func NewImagingCropper() *ImagingCropper {
	return &ImagingCropper{
		JPEGQuality:  90,
		WebPQuality:  90,
		WebPLossless: true,
	}
}

// Crop reads an image from r, crops it to the pixel region and writes the
// result to w in the requested format.
func (c *ImagingCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, region crop.PixelRegion, format crop.Format) error {
	if region.Empty() {
		return fmt.Errorf("invalid crop dimensions: width=%d, height=%d", region.Width, region.Height)
	}

	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The region was computed from header metadata; the decoded bounds win.
	bounds := src.Bounds()
	cropRect := region.Rectangle().Add(bounds.Min)
	if !cropRect.In(bounds) {
		cropRect = cropRect.Intersect(bounds)
		if cropRect.Empty() {
			return errEmptyCrop
		}
	}

	cropped := imaging.Crop(src, cropRect)
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.encode(w, cropped, format)
}

func (c *ImagingCropper) encode(w io.Writer, img image.Image, format crop.Format) error {
	switch format {
	case crop.PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case crop.JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(c.JPEGQuality))
	case crop.WebP:
		return webp.Encode(w, img, &webp.Options{Lossless: c.WebPLossless, Quality: c.WebPQuality})
	}
	return fmt.Errorf("unsupported format: %s", format)
}
