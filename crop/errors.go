package crop

import "errors"

var (
	// ErrInvalidDimension is returned when a viewport or image size is not strictly positive.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrImageLoad is returned when the intrinsic size of an image cannot be read.
	ErrImageLoad = errors.New("image load failed")
	// ErrProcessing is returned when the image-processing collaborator fails to crop.
	ErrProcessing = errors.New("image processing failed")
	// ErrSelectionTooSmall is returned when the selection maps to a zero-area pixel region.
	ErrSelectionTooSmall = errors.New("selection too small")

	ErrCommitInProgress = errors.New("commit already in progress")
	ErrSessionClosed    = errors.New("session closed")
	ErrGestureActive    = errors.New("another gesture is active")
	ErrNoGesture        = errors.New("gesture is not active")
)
