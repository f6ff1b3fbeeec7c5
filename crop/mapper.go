package crop

import (
	"crypto/md5"
	"fmt"
	"image"
	"math"
)

// PixelRegion is a crop region in the source image's pixel space.
type PixelRegion struct {
	OriginX int `json:"origin_x"`
	OriginY int `json:"origin_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

func (p PixelRegion) String() string {
	return fmt.Sprintf("region(x=%d,y=%d,w=%d,h=%d)", p.OriginX, p.OriginY, p.Width, p.Height)
}

// Empty reports whether the region has no area.
func (p PixelRegion) Empty() bool {
	return p.Width <= 0 || p.Height <= 0
}

// Rectangle converts the region to an image.Rectangle.
func (p PixelRegion) Rectangle() image.Rectangle {
	return image.Rect(p.OriginX, p.OriginY, p.OriginX+p.Width, p.OriginY+p.Height)
}

// ID is a stable short identifier for the region, used in output file names.
func (p PixelRegion) ID() string {
	sum := md5.Sum([]byte(p.String()))
	return fmt.Sprintf("%x", sum[:6])
}

// MapToPixels converts a viewport rectangle into pixel space using the
// geometry's offsets and scale. The result is always clamped to the image
// bounds; a rectangle lying outside the displayed image yields a region with
// zero or negative width or height, which is returned as is.
func MapToPixels(r Rect, g Geometry, img Size) PixelRegion {
	p := PixelRegion{
		OriginX: int(math.Round((r.X - g.OffsetX) * g.Scale)),
		OriginY: int(math.Round((r.Y - g.OffsetY) * g.Scale)),
		Width:   int(math.Round(r.Width * g.Scale)),
		Height:  int(math.Round(r.Height * g.Scale)),
	}

	imgWidth := int(math.Round(img.Width))
	imgHeight := int(math.Round(img.Height))

	p.OriginX = max(0, p.OriginX)
	p.OriginY = max(0, p.OriginY)
	p.Width = min(imgWidth-p.OriginX, p.Width)
	p.Height = min(imgHeight-p.OriginY, p.Height)
	return p
}
