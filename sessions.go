package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fitcrop/crop"
)

// SessionRegistry keeps the open crop sessions of the web app. Sessions leave
// the registry when they are committed or cancelled.
type SessionRegistry struct {
	Metadata  crop.MetadataProvider
	Processor crop.Processor
	Options   crop.Options
	// OnCrop is called with the source file and result of every committed session.
	OnCrop func(file, result string)

	mu       sync.Mutex
	sessions map[string]*crop.Session
}

func NewSessionRegistry(meta crop.MetadataProvider, proc crop.Processor, opts crop.Options) *SessionRegistry {
	return &SessionRegistry{
		Metadata:  meta,
		Processor: proc,
		Options:   opts,
		sessions:  make(map[string]*crop.Session),
	}
}

// Open starts a crop session for file shown in viewport.
func (r *SessionRegistry) Open(ctx context.Context, file string, viewport crop.Size, format crop.Format) (string, *crop.Session, error) {
	id := uuid.NewString()
	logger := log.Ctx(ctx).With().Str("session", id).Str("filename", file).Logger()

	s, err := crop.NewSession(file, viewport, r.Metadata, r.Processor, crop.SessionOptions{
		Editor: r.Options,
		Format: format,
		OnCrop: func(result string) {
			r.remove(id)
			logger.Info().Str("result", result).Msg("crop session committed")
			if r.OnCrop != nil {
				r.OnCrop(file, result)
			}
		},
		OnCancel: func() {
			r.remove(id)
			logger.Info().Msg("crop session cancelled")
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to open crop session: %w", err)
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	logger.Debug().Stringer("viewport", viewport).Stringer("rect", s.Rect()).Msg("crop session opened")
	return id, s, nil
}

func (r *SessionRegistry) Get(id string) (*crop.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll dismisses every open session, for shutdown.
func (r *SessionRegistry) CancelAll() {
	r.mu.Lock()
	open := make([]*crop.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		s.Cancel()
	}
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
