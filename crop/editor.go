package crop

import (
	"fmt"
	"math"
)

// Rect is a crop rectangle in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("rect(x=%.2f,y=%.2f,w=%.2f,h=%.2f)", r.X, r.Y, r.Width, r.Height)
}

// Corner identifies a resize handle.
type Corner int

const (
	TopLeft Corner = iota
	BottomRight
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case BottomRight:
		return "bottom-right"
	}
	return fmt.Sprintf("Corner(%d)", int(c))
}

// ParseCorner parses the names produced by Corner.String.
func ParseCorner(s string) (Corner, error) {
	switch s {
	case "top-left", "topLeft":
		return TopLeft, nil
	case "bottom-right", "bottomRight":
		return BottomRight, nil
	}
	return 0, fmt.Errorf("unknown corner %q", s)
}

// Options controls the rectangle limits and its initial placement.
type Options struct {
	// MinSize is the smallest width and height the rectangle may take.
	MinSize float64 `json:"min_size"`
	// InitialFraction sizes the initial square relative to the shorter viewport side.
	InitialFraction float64 `json:"initial_fraction"`
	// VerticalBias places the initial square this fraction of the free vertical
	// space down from the top. 0.5 centers it.
	VerticalBias float64 `json:"vertical_bias"`
}

// DefaultOptions returns the options used by the crop page.
func DefaultOptions() Options {
	return Options{
		MinSize:         50,
		InitialFraction: 0.7,
		VerticalBias:    0.4,
	}
}

func (o Options) validate() error {
	if !positive(o.MinSize) {
		return fmt.Errorf("min size %g: %w", o.MinSize, ErrInvalidDimension)
	}
	if o.InitialFraction <= 0 || o.InitialFraction > 1 {
		return fmt.Errorf("initial fraction %g must be in (0, 1]", o.InitialFraction)
	}
	if o.VerticalBias < 0 || o.VerticalBias > 1 {
		return fmt.Errorf("vertical bias %g must be in [0, 1]", o.VerticalBias)
	}
	return nil
}

// GestureKind tells which interaction channel a gesture belongs to.
type GestureKind int

const (
	Drag GestureKind = iota
	Resize
)

func (k GestureKind) String() string {
	if k == Resize {
		return "resize"
	}
	return "drag"
}

// Gesture is the accumulator for one drag or resize interaction. Drags derive
// every position from Baseline; resizes turn cumulative deltas into
// event-to-event deltas using the last seen values.
type Gesture struct {
	Kind     GestureKind
	Corner   Corner
	Baseline Rect

	lastDx, lastDy float64
}

// Editor holds the crop rectangle of one crop session. It is not safe for
// concurrent use.
type Editor struct {
	viewport Size
	opts     Options
	rect     Rect
	active   *Gesture
}

// NewEditor returns an editor with the initial rectangle placed in viewport.
func NewEditor(viewport Size, opts Options) (*Editor, error) {
	if !viewport.valid() {
		return nil, fmt.Errorf("viewport %s: %w", viewport, ErrInvalidDimension)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	// MinSize wins over a viewport narrower than it; the origin stays inside.
	size := math.Max(opts.InitialFraction*math.Min(viewport.Width, viewport.Height), opts.MinSize)
	return &Editor{
		viewport: viewport,
		opts:     opts,
		rect: Rect{
			X:      clamp((viewport.Width-size)/2, 0, viewport.Width),
			Y:      clamp((viewport.Height-size)*opts.VerticalBias, 0, viewport.Height),
			Width:  size,
			Height: size,
		},
	}, nil
}

func (e *Editor) Viewport() Size { return e.viewport }

func (e *Editor) Options() Options { return e.opts }

// Commit returns a snapshot of the current rectangle.
func (e *Editor) Commit() Rect {
	return e.rect
}

// Active returns the gesture in progress, or nil when idle.
func (e *Editor) Active() *Gesture {
	return e.active
}

// Translate moves the rectangle to baseline shifted by (dx, dy). Only the
// origin is clamped to the viewport, so the far edge may extend past it.
func (e *Editor) Translate(baseline Rect, dx, dy float64) {
	e.rect.X = clamp(baseline.X+dx, 0, e.viewport.Width)
	e.rect.Y = clamp(baseline.Y+dy, 0, e.viewport.Height)
	e.rect.Width = baseline.Width
	e.rect.Height = baseline.Height
}

// ResizeFromCorner grows or shrinks the rectangle by the deltas since the
// previous event. The bottom-right handle clamps each side independently; a
// top-left update that would break any limit is dropped as a whole.
func (e *Editor) ResizeFromCorner(corner Corner, dx, dy float64) {
	r := e.rect
	switch corner {
	case BottomRight:
		e.rect.Width = clamp(r.Width+dx, e.opts.MinSize, e.viewport.Width-r.X)
		e.rect.Height = clamp(r.Height+dy, e.opts.MinSize, e.viewport.Height-r.Y)
	case TopLeft:
		next := Rect{
			X:      r.X + dx,
			Y:      r.Y + dy,
			Width:  r.Width - dx,
			Height: r.Height - dy,
		}
		if next.Width < e.opts.MinSize || next.Height < e.opts.MinSize || next.X < 0 || next.Y < 0 {
			return
		}
		e.rect = next
	}
}

// Place replaces the rectangle, keeping the minimum size and origin clamp.
func (e *Editor) Place(r Rect) error {
	if e.active != nil {
		return ErrGestureActive
	}
	e.rect = Rect{
		X:      clamp(r.X, 0, e.viewport.Width),
		Y:      clamp(r.Y, 0, e.viewport.Height),
		Width:  math.Max(r.Width, e.opts.MinSize),
		Height: math.Max(r.Height, e.opts.MinSize),
	}
	return nil
}

// BeginDrag starts moving the whole rectangle.
func (e *Editor) BeginDrag() (*Gesture, error) {
	return e.begin(&Gesture{Kind: Drag})
}

// BeginResize starts resizing from the given corner.
func (e *Editor) BeginResize(corner Corner) (*Gesture, error) {
	if corner != TopLeft && corner != BottomRight {
		return nil, fmt.Errorf("resize: unknown corner %v", corner)
	}
	return e.begin(&Gesture{Kind: Resize, Corner: corner})
}

func (e *Editor) begin(g *Gesture) (*Gesture, error) {
	if e.active != nil {
		return nil, fmt.Errorf("begin %s: %w", g.Kind, ErrGestureActive)
	}
	g.Baseline = e.rect
	e.active = g
	return g, nil
}

// Move applies the cumulative gesture deltas (dx, dy), measured from where the
// gesture started.
func (e *Editor) Move(g *Gesture, dx, dy float64) error {
	if g == nil || g != e.active {
		return ErrNoGesture
	}
	switch g.Kind {
	case Drag:
		e.Translate(g.Baseline, dx, dy)
	case Resize:
		stepX, stepY := dx-g.lastDx, dy-g.lastDy
		g.lastDx, g.lastDy = dx, dy
		e.ResizeFromCorner(g.Corner, stepX, stepY)
	}
	return nil
}

// End finishes the gesture and returns the editor to idle.
func (e *Editor) End(g *Gesture) error {
	if g == nil || g != e.active {
		return ErrNoGesture
	}
	e.active = nil
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
