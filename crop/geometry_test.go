package crop

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGeometry_Letterbox(t *testing.T) {
	g, err := ComputeGeometry(Size{1000, 2000}, Size{4000, 2000})
	require.NoError(t, err)

	assert.InDelta(t, 1000, g.DisplayedWidth, 1e-9)
	assert.InDelta(t, 500, g.DisplayedHeight, 1e-9)
	assert.InDelta(t, 0, g.OffsetX, 1e-9)
	assert.InDelta(t, 750, g.OffsetY, 1e-9)
	assert.InDelta(t, 4, g.Scale, 1e-9)
}

func TestComputeGeometry_Pillarbox(t *testing.T) {
	g, err := ComputeGeometry(Size{1000, 1000}, Size{500, 1000})
	require.NoError(t, err)

	assert.InDelta(t, 500, g.DisplayedWidth, 1e-9)
	assert.InDelta(t, 1000, g.DisplayedHeight, 1e-9)
	assert.InDelta(t, 250, g.OffsetX, 1e-9)
	assert.InDelta(t, 0, g.OffsetY, 1e-9)
	assert.InDelta(t, 1, g.Scale, 1e-9)
}

func TestComputeGeometry_SameAspect(t *testing.T) {
	g, err := ComputeGeometry(Size{390, 844}, Size{780, 1688})
	require.NoError(t, err)

	assert.InDelta(t, 390, g.DisplayedWidth, 1e-9)
	assert.InDelta(t, 844, g.DisplayedHeight, 1e-9)
	assert.InDelta(t, 0, g.OffsetX, 1e-9)
	assert.InDelta(t, 0, g.OffsetY, 1e-9)
	assert.InDelta(t, 2, g.Scale, 1e-9)
}

func TestComputeGeometry_InvalidDimensions(t *testing.T) {
	tests := []struct {
		name     string
		viewport Size
		image    Size
	}{
		{"zero viewport width", Size{0, 100}, Size{10, 10}},
		{"negative viewport height", Size{100, -1}, Size{10, 10}},
		{"zero image height", Size{100, 100}, Size{10, 0}},
		{"negative image width", Size{100, 100}, Size{-10, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeGeometry(tt.viewport, tt.image)
			assert.ErrorIs(t, err, ErrInvalidDimension)
		})
	}
}

func TestComputeGeometry_FitsViewport(t *testing.T) {
	sides := []float64{1, 3, 50, 390, 844, 1000, 2000, 4032, 7}
	for _, vw := range sides {
		for _, vh := range sides {
			for _, iw := range sides {
				for _, ih := range sides {
					viewport, img := Size{vw, vh}, Size{iw, ih}
					t.Run(fmt.Sprintf("%s in %s", img, viewport), func(t *testing.T) {
						g, err := ComputeGeometry(viewport, img)
						require.NoError(t, err)

						eps := 1e-9 * max(vw, vh)
						assert.LessOrEqual(t, g.DisplayedWidth, vw+eps)
						assert.LessOrEqual(t, g.DisplayedHeight, vh+eps)
						touchesX := g.DisplayedWidth >= vw-eps
						touchesY := g.DisplayedHeight >= vh-eps
						assert.True(t, touchesX || touchesY, "displayed image touches neither axis: %+v", g)
						assert.InEpsilon(t, ih/g.DisplayedHeight, g.Scale, 1e-9)
						assert.InDelta(t, vw, 2*g.OffsetX+g.DisplayedWidth, eps)
						assert.InDelta(t, vh, 2*g.OffsetY+g.DisplayedHeight, eps)
					})
				}
			}
		}
	}
}

func TestGeometry_Contains(t *testing.T) {
	g, err := ComputeGeometry(Size{1000, 2000}, Size{4000, 2000})
	require.NoError(t, err)

	assert.True(t, g.Contains(Rect{X: 100, Y: 800, Width: 200, Height: 200}))
	assert.False(t, g.Contains(Rect{X: 100, Y: 700, Width: 200, Height: 200}))
	assert.False(t, g.Contains(Rect{X: 900, Y: 800, Width: 200, Height: 200}))
}
