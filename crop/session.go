package crop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// MetadataProvider reads the intrinsic pixel size of an image.
type MetadataProvider interface {
	IntrinsicSize(ctx context.Context, handle string) (Size, error)
}

// Processor crops an image to a pixel region and returns a handle to the result.
type Processor interface {
	Crop(ctx context.Context, handle string, region PixelRegion, format Format) (string, error)
}

type SessionOptions struct {
	Editor Options
	Format Format
	// OnCrop receives the result handle after a successful commit.
	OnCrop func(result string)
	// OnCancel is called when the session is dismissed or aborted.
	OnCancel func()
}

// Session is one crop interaction over a single image: gestures edit the
// rectangle until Commit produces a cropped image or Cancel dismisses it.
// Exactly one of OnCrop and OnCancel is called, at most once.
type Session struct {
	handle   string
	meta     MetadataProvider
	proc     Processor
	format   Format
	onCrop   func(string)
	onCancel func()

	mu         sync.Mutex
	editor     *Editor
	committing bool
	closed     bool
}

func NewSession(handle string, viewport Size, meta MetadataProvider, proc Processor, opts SessionOptions) (*Session, error) {
	if meta == nil || proc == nil {
		return nil, errors.New("session requires a metadata provider and a processor")
	}
	editor, err := NewEditor(viewport, opts.Editor)
	if err != nil {
		return nil, err
	}
	return &Session{
		handle:   handle,
		meta:     meta,
		proc:     proc,
		format:   opts.Format,
		onCrop:   opts.OnCrop,
		onCancel: opts.OnCancel,
		editor:   editor,
	}, nil
}

func (s *Session) Handle() string { return s.handle }

func (s *Session) Viewport() Size { return s.editor.Viewport() }

// Rect returns the current crop rectangle.
func (s *Session) Rect() Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Commit()
}

// Closed reports whether the session has been committed or cancelled.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Committing reports whether a commit is in flight.
func (s *Session) Committing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committing
}

// Begin starts a gesture on the drag channel or on a resize handle.
func (s *Session) Begin(kind GestureKind, corner Corner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	var err error
	if kind == Resize {
		_, err = s.editor.BeginResize(corner)
	} else {
		_, err = s.editor.BeginDrag()
	}
	return err
}

// Move feeds cumulative gesture deltas to the active gesture.
func (s *Session) Move(dx, dy float64) (Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Rect{}, ErrSessionClosed
	}
	if err := s.editor.Move(s.editor.Active(), dx, dy); err != nil {
		return Rect{}, err
	}
	return s.editor.Commit(), nil
}

// End finishes the active gesture.
func (s *Session) End() (Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Rect{}, ErrSessionClosed
	}
	if err := s.editor.End(s.editor.Active()); err != nil {
		return Rect{}, err
	}
	return s.editor.Commit(), nil
}

// Place replaces the crop rectangle, for example with a suggested one.
func (s *Session) Place(r Rect) (Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Rect{}, ErrSessionClosed
	}
	if err := s.editor.Place(r); err != nil {
		return Rect{}, err
	}
	return s.editor.Commit(), nil
}

// Commit crops the image to the current rectangle. Gestures stay enabled
// while the collaborators run; the rectangle is read once when Commit starts.
// On a recoverable failure the session stays open so the caller can retry.
// If the session is closed before the collaborators return, the result is
// discarded.
func (s *Session) Commit(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.committing {
		s.mu.Unlock()
		return "", ErrCommitInProgress
	}
	s.committing = true
	rect := s.editor.Commit()
	viewport := s.editor.Viewport()
	s.mu.Unlock()

	result, err := s.crop(ctx, rect, viewport)

	s.mu.Lock()
	s.committing = false
	if s.closed {
		s.mu.Unlock()
		log.Ctx(ctx).Debug().Str("handle", s.handle).Msg("session closed during commit, discarding result")
		return "", ErrSessionClosed
	}
	if err != nil {
		aborted := errors.Is(err, ErrInvalidDimension)
		if aborted {
			s.closed = true
		}
		s.mu.Unlock()
		if aborted && s.onCancel != nil {
			s.onCancel()
		}
		return "", err
	}
	s.closed = true
	s.mu.Unlock()

	if s.onCrop != nil {
		s.onCrop(result)
	}
	return result, nil
}

func (s *Session) crop(ctx context.Context, rect Rect, viewport Size) (string, error) {
	size, err := s.meta.IntrinsicSize(ctx, s.handle)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrImageLoad, s.handle, err)
	}

	geom, err := ComputeGeometry(viewport, size)
	if err != nil {
		return "", err
	}

	region := MapToPixels(rect, geom, size)
	log.Ctx(ctx).Debug().
		Str("handle", s.handle).
		Stringer("rect", rect).
		Stringer("region", region).
		Float64("scale", geom.Scale).
		Msg("mapped crop rectangle")
	if region.Empty() {
		return "", fmt.Errorf("%w: %s", ErrSelectionTooSmall, region)
	}

	result, err := s.proc.Crop(ctx, s.handle, region, s.format)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return result, nil
}

// Cancel dismisses the session. It is a no-op once the session is closed.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.onCancel != nil {
		s.onCancel()
	}
}
