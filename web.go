package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir          string
	OutputDir        string
	Registry         *Registry
	Sessions         *SessionStore
	OnBeforeShutdown func()
	OnReady          func(addr string)
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
	webapp := a.newFiberApp(ctx)

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
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Use the listener that was already created
	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	log.Ctx(ctx).Info().Msg("Waiting for running sessions to finish")
	a.config.Sessions.Wait()
	return nil
}

// newFiberApp builds the routes. Pipeline runs started from a request are
// bound to ctx, not to the request.
func (a *WebApp) newFiberApp(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := errorStatus(err)
			if code >= http.StatusInternalServerError {
				log.Ctx(ctx).Error().
					Err(err).
					Str("path", c.Path()).
					Str("method", c.Method()).
					Msg("Request failed")
			}
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			if code == http.StatusInternalServerError {
				return c.Status(code).JSON(fiber.Map{"error": "Internal Server Error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(ctx, a.config.RootDir, a.config.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		return c.JSON(dir)
	})

	webapp.Get("/api/classes", func(c *fiber.Ctx) error {
		return c.JSON(a.config.Registry.List())
	})

	webapp.Post("/api/sessions", func(c *fiber.Ctx) error {
		var request struct {
			File  string `json:"file"`
			Class string `json:"class"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		class, err := a.config.Registry.Lookup(request.Class)
		if err != nil {
			return err
		}
		path, err := a.sourcePath(request.File)
		if err != nil {
			return err
		}
		asset, err := OpenAsset(path)
		if err != nil {
			return err
		}

		s := a.config.Sessions.Create(request.File, asset, class)
		log.Ctx(ctx).Info().
			Str("session", s.ID).
			Str("file", request.File).
			Str("class", class.ID).
			Int("width", asset.PixelWidth).
			Int("height", asset.PixelHeight).
			Msg("session started")
		return c.Status(http.StatusCreated).JSON(s.View())
	})

	webapp.Get("/api/sessions/:id", func(c *fiber.Ctx) error {
		s, err := a.config.Sessions.Get(c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(s.View())
	})

	webapp.Post("/api/sessions/:id/gestures", func(c *fiber.Ctx) error {
		var request struct {
			Events []GestureEvent `json:"events"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		s, err := a.config.Sessions.Get(c.Params("id"))
		if err != nil {
			return err
		}
		state, err := s.ApplyGestures(request.Events)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"state": state,
			"rect":  ResolveCropRect(state, s.Class.Frame, s.Asset.PixelWidth, s.Asset.PixelHeight),
		})
	})

	webapp.Post("/api/sessions/:id/apply", func(c *fiber.Ctx) error {
		if err := a.config.Sessions.Commit(ctx, c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(http.StatusAccepted)
	})

	webapp.Delete("/api/sessions/:id", func(c *fiber.Ctx) error {
		if err := a.config.Sessions.Abandon(c.Params("id")); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("session", c.Params("id")).Msg("session abandoned")
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

// sourcePath resolves a file name from the UI inside the root directory.
func (a *WebApp) sourcePath(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid file %q", name))
	}
	return filepath.Join(a.config.RootDir, name), nil
}

func errorStatus(err error) int {
	var (
		fiberErr  *fiber.Error
		decodeErr *DecodeError
		rectErr   *InvalidRectError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownAssetClass), errors.As(err, &rectErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionBusy), errors.Is(err, ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
