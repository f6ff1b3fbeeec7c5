package crop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	e, err := NewEditor(Size{400, 800}, DefaultOptions())
	require.NoError(t, err)
	return e
}

func TestNewEditor_InitialRect(t *testing.T) {
	e := newTestEditor(t)

	// 70% of the shorter side, centered horizontally, 40% of the free space down.
	assert.Equal(t, Rect{X: 60, Y: 208, Width: 280, Height: 280}, e.Commit())
	assert.Nil(t, e.Active())
}

func TestNewEditor_Validation(t *testing.T) {
	_, err := NewEditor(Size{0, 800}, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidDimension)

	opts := DefaultOptions()
	opts.MinSize = 0
	_, err = NewEditor(Size{400, 800}, opts)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	opts = DefaultOptions()
	opts.InitialFraction = 1.5
	_, err = NewEditor(Size{400, 800}, opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.VerticalBias = -0.1
	_, err = NewEditor(Size{400, 800}, opts)
	assert.Error(t, err)
}

func TestNewEditor_TinyViewportKeepsMinSize(t *testing.T) {
	e, err := NewEditor(Size{40, 60}, DefaultOptions())
	require.NoError(t, err)

	r := e.Commit()
	assert.Equal(t, 50.0, r.Width)
	assert.Equal(t, 50.0, r.Height)
	assert.Equal(t, 0.0, r.X)
	assert.Equal(t, 4.0, r.Y)

	// a zero resize step keeps the origin in place
	e.ResizeFromCorner(BottomRight, 0, 0)
	r = e.Commit()
	assert.GreaterOrEqual(t, r.X, 0.0)
	assert.GreaterOrEqual(t, r.Y, 0.0)
}

func TestNewEditor_OriginNeverNegative(t *testing.T) {
	for _, vp := range []Size{{40, 60}, {60, 40}, {10, 10}, {49, 1000}, {1000, 49}} {
		e, err := NewEditor(vp, DefaultOptions())
		require.NoError(t, err)
		r := e.Commit()
		assert.GreaterOrEqual(t, r.X, 0.0, "viewport %s", vp)
		assert.GreaterOrEqual(t, r.Y, 0.0, "viewport %s", vp)
	}
}

func TestEditor_CommitIsIdempotent(t *testing.T) {
	e := newTestEditor(t)
	e.Translate(e.Commit(), 15, -7)

	first := e.Commit()
	assert.Equal(t, first, e.Commit())
	assert.Equal(t, first, e.Commit())
}

func TestEditor_Translate(t *testing.T) {
	e := newTestEditor(t)
	baseline := Rect{X: 50, Y: 50, Width: 100, Height: 100}

	e.Translate(baseline, -100, 10)
	assert.Equal(t, Rect{X: 0, Y: 60, Width: 100, Height: 100}, e.Commit())

	e.Translate(baseline, 20, -80)
	assert.Equal(t, Rect{X: 70, Y: 0, Width: 100, Height: 100}, e.Commit())

	// Only the origin is clamped; the far edge may leave the viewport.
	e.Translate(baseline, 1000, 1000)
	assert.Equal(t, Rect{X: 400, Y: 800, Width: 100, Height: 100}, e.Commit())

	e.Translate(baseline, 330, 0)
	r := e.Commit()
	assert.Equal(t, 380.0, r.X)
	assert.Greater(t, r.X+r.Width, 400.0)
}

func TestEditor_ResizeBottomRight(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		want   Rect
	}{
		{"grow", 20, 30, Rect{X: 60, Y: 208, Width: 300, Height: 310}},
		{"shrink", -100, -200, Rect{X: 60, Y: 208, Width: 180, Height: 80}},
		{"huge negative stays at min size", -1e9, -1e9, Rect{X: 60, Y: 208, Width: 50, Height: 50}},
		{"clamped to viewport", 1000, 1000, Rect{X: 60, Y: 208, Width: 340, Height: 592}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEditor(t)
			e.ResizeFromCorner(BottomRight, tt.dx, tt.dy)
			assert.Equal(t, tt.want, e.Commit())
		})
	}
}

func TestEditor_ResizeTopLeft(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		want   Rect
	}{
		{"grow", -10, -20, Rect{X: 50, Y: 188, Width: 290, Height: 300}},
		{"shrink", 30, 40, Rect{X: 90, Y: 248, Width: 250, Height: 240}},
		{"rejected when x would be negative", -61, 0, Rect{X: 60, Y: 208, Width: 280, Height: 280}},
		{"rejected when y would be negative", 0, -209, Rect{X: 60, Y: 208, Width: 280, Height: 280}},
		{"rejected below min width", 231, 0, Rect{X: 60, Y: 208, Width: 280, Height: 280}},
		{"rejected below min height even if width ok", 10, 240, Rect{X: 60, Y: 208, Width: 280, Height: 280}},
		{"exactly min size", 230, 230, Rect{X: 290, Y: 438, Width: 50, Height: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEditor(t)
			e.ResizeFromCorner(TopLeft, tt.dx, tt.dy)
			assert.Equal(t, tt.want, e.Commit())
		})
	}
}

func TestEditor_DragGesture(t *testing.T) {
	e := newTestEditor(t)

	g, err := e.BeginDrag()
	require.NoError(t, err)
	assert.Equal(t, g, e.Active())

	// Deltas are cumulative from the gesture start.
	require.NoError(t, e.Move(g, 10, 20))
	require.NoError(t, e.Move(g, 30, 40))
	assert.Equal(t, Rect{X: 90, Y: 248, Width: 280, Height: 280}, e.Commit())

	require.NoError(t, e.Move(g, -500, 0))
	assert.Equal(t, 0.0, e.Commit().X)

	require.NoError(t, e.End(g))
	assert.Nil(t, e.Active())
}

func TestEditor_ResizeGestureUsesEventDeltas(t *testing.T) {
	e := newTestEditor(t)

	g, err := e.BeginResize(BottomRight)
	require.NoError(t, err)
	require.NoError(t, e.Move(g, 10, 10))
	require.NoError(t, e.Move(g, 25, 5))
	assert.Equal(t, Rect{X: 60, Y: 208, Width: 305, Height: 285}, e.Commit())
	require.NoError(t, e.End(g))

	// A new gesture starts from zero again.
	g, err = e.BeginResize(TopLeft)
	require.NoError(t, err)
	require.NoError(t, e.Move(g, 5, 5))
	assert.Equal(t, Rect{X: 65, Y: 213, Width: 300, Height: 280}, e.Commit())
	require.NoError(t, e.Move(g, -100, 5))
	// x would become -40, the whole step is dropped
	assert.Equal(t, Rect{X: 65, Y: 213, Width: 300, Height: 280}, e.Commit())
	// the dropped step still counts as seen
	require.NoError(t, e.Move(g, -90, 5))
	assert.Equal(t, Rect{X: 75, Y: 213, Width: 290, Height: 280}, e.Commit())
	require.NoError(t, e.End(g))
}

func TestEditor_GesturesAreExclusive(t *testing.T) {
	e := newTestEditor(t)

	g, err := e.BeginDrag()
	require.NoError(t, err)

	_, err = e.BeginResize(TopLeft)
	assert.ErrorIs(t, err, ErrGestureActive)
	_, err = e.BeginDrag()
	assert.ErrorIs(t, err, ErrGestureActive)

	stale := &Gesture{Kind: Drag}
	assert.ErrorIs(t, e.Move(stale, 1, 1), ErrNoGesture)
	assert.ErrorIs(t, e.End(stale), ErrNoGesture)
	assert.ErrorIs(t, e.Move(nil, 1, 1), ErrNoGesture)

	require.NoError(t, e.End(g))
	assert.ErrorIs(t, e.Move(g, 1, 1), ErrNoGesture)
	assert.ErrorIs(t, e.End(g), ErrNoGesture)

	_, err = e.BeginResize(Corner(7))
	assert.Error(t, err)
}

func TestEditor_Place(t *testing.T) {
	e := newTestEditor(t)

	require.NoError(t, e.Place(Rect{X: -5, Y: 900, Width: 10, Height: 120}))
	assert.Equal(t, Rect{X: 0, Y: 800, Width: 50, Height: 120}, e.Commit())

	g, err := e.BeginDrag()
	require.NoError(t, err)
	assert.ErrorIs(t, e.Place(Rect{}), ErrGestureActive)
	require.NoError(t, e.End(g))
}

func TestParseCorner(t *testing.T) {
	c, err := ParseCorner("top-left")
	require.NoError(t, err)
	assert.Equal(t, TopLeft, c)

	c, err = ParseCorner("bottomRight")
	require.NoError(t, err)
	assert.Equal(t, BottomRight, c)

	_, err = ParseCorner("middle")
	assert.Error(t, err)
}
