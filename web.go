package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"fitcrop/crop"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir   string
	OutputDir string
	Sessions  *SessionRegistry
	// Suggester places the initial rectangle when a session asks for it. Optional.
	Suggester        Suggester
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnSave           func(ops Operations)
}

type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newFiber(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		a.config.Sessions.CancelAll()
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// newFiber builds the application. Session commits run on ctx rather than on
// the request, so a dropped connection does not abort a crop in flight.
func (a *WebApp) newFiber(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(ctx).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	outputRoot := http.Dir(a.config.OutputDir)
	webapp.Get("/api/output", func(c *fiber.Ctx) error {
		return filesystem.SendFile(c, outputRoot, c.Query("file"))
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(ctx, a.config.RootDir, a.config.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		var response struct {
			Name  string     `json:"name"`
			Files []FileInfo `json:"files"`
		}
		response.Name = dir.Name
		response.Files = dir.Files

		return c.JSON(response)
	})

	webapp.Post("/api/sessions", func(c *fiber.Ctx) error {
		var request struct {
			File     string      `json:"file"`
			Viewport crop.Size   `json:"viewport"`
			Format   crop.Format `json:"format"`
			Suggest  bool        `json:"suggest"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		p, err := resolvePath(a.config.RootDir, request.File)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if _, err := os.Stat(p); err != nil {
			return fiber.NewError(http.StatusNotFound, fmt.Sprintf("file %q not found", request.File))
		}

		id, s, err := a.config.Sessions.Open(ctx, request.File, request.Viewport, request.Format)
		if err != nil {
			return errorStatus(err)
		}

		if request.Suggest && a.config.Suggester != nil {
			a.placeSuggestion(ctx, s)
		}

		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"id":       id,
			"file":     request.File,
			"viewport": s.Viewport(),
			"rect":     s.Rect(),
		})
	})

	webapp.Get("/api/sessions/:id", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"file":       s.Handle(),
			"viewport":   s.Viewport(),
			"rect":       s.Rect(),
			"committing": s.Committing(),
		})
	})

	webapp.Post("/api/sessions/:id/gestures", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		var request struct {
			Phase  string  `json:"phase"`
			Kind   string  `json:"kind"`
			Corner string  `json:"corner"`
			DX     float64 `json:"dx"`
			DY     float64 `json:"dy"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		var rect crop.Rect
		switch request.Phase {
		case "start":
			kind, corner, err := parseGesture(request.Kind, request.Corner)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
			if err := s.Begin(kind, corner); err != nil {
				return errorStatus(err)
			}
			rect = s.Rect()
		case "move":
			rect, err = s.Move(request.DX, request.DY)
		case "end":
			rect, err = s.End()
		default:
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("unknown gesture phase %q", request.Phase))
		}
		if err != nil {
			return errorStatus(err)
		}
		return c.JSON(fiber.Map{"rect": rect})
	})

	webapp.Post("/api/sessions/:id/commit", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		output, err := s.Commit(ctx)
		if err != nil {
			return errorStatus(err)
		}
		return c.JSON(fiber.Map{
			"output": output,
			"url":    "/api/output?file=" + url.QueryEscape(output),
		})
	})

	webapp.Delete("/api/sessions/:id", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		s.Cancel()
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/save", func(c *fiber.Ctx) error {
		var request struct {
			Operations []Operation `json:"operations"`
		}

		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		if fn := a.config.OnSave; fn != nil {
			fn(request.Operations)
		}

		return c.SendStatus(http.StatusNoContent)
	})
	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) session(c *fiber.Ctx) (*crop.Session, error) {
	s, ok := a.config.Sessions.Get(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, "crop session not found")
	}
	return s, nil
}

func (a *WebApp) placeSuggestion(ctx context.Context, s *crop.Session) {
	region, size, err := a.config.Suggester.Suggest(ctx, s.Handle())
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("filename", s.Handle()).Msg("no crop suggestion, keeping default rect")
		return
	}
	geom, err := crop.ComputeGeometry(s.Viewport(), size)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("filename", s.Handle()).Msg("cannot place crop suggestion")
		return
	}
	if _, err := s.Place(geom.ToView(region)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("filename", s.Handle()).Msg("cannot place crop suggestion")
	}
}

func parseGesture(kind, corner string) (crop.GestureKind, crop.Corner, error) {
	switch kind {
	case "drag", "move":
		return crop.Drag, crop.TopLeft, nil
	case "resize":
		c, err := crop.ParseCorner(corner)
		if err != nil {
			return 0, 0, err
		}
		return crop.Resize, c, nil
	}
	return 0, 0, fmt.Errorf("unknown gesture kind %q", kind)
}

// errorStatus maps crop errors to HTTP errors for the error handler.
func errorStatus(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, crop.ErrSelectionTooSmall),
		errors.Is(err, crop.ErrInvalidDimension),
		errors.Is(err, crop.ErrImageLoad):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, crop.ErrCommitInProgress),
		errors.Is(err, crop.ErrSessionClosed),
		errors.Is(err, crop.ErrGestureActive),
		errors.Is(err, crop.ErrNoGesture):
		code = http.StatusConflict
	case errors.Is(err, crop.ErrProcessing):
		code = http.StatusBadGateway
	}
	return fiber.NewError(code, err.Error())
}
