// Package crop maps an on-screen crop rectangle over an aspect-fit image back
// into the image's pixel space, and edits that rectangle from drag and resize
// gestures.
package crop

import (
	"fmt"
	"math"
)

// Size is a width/height pair. Viewports use display units, images use pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

func (s Size) valid() bool {
	return positive(s.Width) && positive(s.Height)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Geometry describes where a "contain"-scaled image sits inside a viewport.
type Geometry struct {
	DisplayedWidth  float64 `json:"displayed_width"`
	DisplayedHeight float64 `json:"displayed_height"`
	OffsetX         float64 `json:"offset_x"`
	OffsetY         float64 `json:"offset_y"`
	// Scale is the number of image pixels per viewport unit.
	Scale float64 `json:"scale"`
}

// ComputeGeometry fits an image of the given intrinsic size into the viewport,
// preserving aspect ratio and centering it. The constraining axis touches the
// viewport edges, the other axis gets equal margins.
func ComputeGeometry(viewport, image Size) (Geometry, error) {
	if !viewport.valid() {
		return Geometry{}, fmt.Errorf("viewport %s: %w", viewport, ErrInvalidDimension)
	}
	if !image.valid() {
		return Geometry{}, fmt.Errorf("image %s: %w", image, ErrInvalidDimension)
	}

	viewportAspect := viewport.Width / viewport.Height
	imageAspect := image.Width / image.Height

	displayedWidth := viewport.Width
	displayedHeight := viewport.Height
	if imageAspect > viewportAspect {
		// letterboxed
		displayedHeight = viewport.Width / imageAspect
	} else {
		// pillarboxed
		displayedWidth = viewport.Height * imageAspect
	}

	return Geometry{
		DisplayedWidth:  displayedWidth,
		DisplayedHeight: displayedHeight,
		OffsetX:         (viewport.Width - displayedWidth) / 2,
		OffsetY:         (viewport.Height - displayedHeight) / 2,
		Scale:           image.Width / displayedWidth,
	}, nil
}

// ToView maps a pixel region back into viewport coordinates.
func (g Geometry) ToView(p PixelRegion) Rect {
	return Rect{
		X:      float64(p.OriginX)/g.Scale + g.OffsetX,
		Y:      float64(p.OriginY)/g.Scale + g.OffsetY,
		Width:  float64(p.Width) / g.Scale,
		Height: float64(p.Height) / g.Scale,
	}
}

// Contains reports whether r lies entirely within the displayed image.
func (g Geometry) Contains(r Rect) bool {
	return r.X >= g.OffsetX && r.Y >= g.OffsetY &&
		r.X+r.Width <= g.OffsetX+g.DisplayedWidth &&
		r.Y+r.Height <= g.OffsetY+g.DisplayedHeight
}
