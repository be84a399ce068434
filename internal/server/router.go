// Package server assembles the Fiber application: global middleware, the
// error handler and the route table shared by cmd/server and the e2e suite.
package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/makeasinger/showrunner/internal/handler"
	"github.com/makeasinger/showrunner/internal/middleware"
	"github.com/makeasinger/showrunner/pkg/response"
)

const bodyLimit = 4 * 1024 * 1024

// Handlers are the route targets
type Handlers struct {
	Auth      *handler.AuthHandler
	Show      *handler.ShowHandler
	Track     *handler.TrackHandler
	Callback  *handler.CallbackHandler
	WebSocket *handler.WebSocketHandler
}

// Options controls the middleware placed in front of the routes
type Options struct {
	// APIAuth guards /api. Required.
	APIAuth       fiber.Handler
	RateLimiter   *middleware.RateLimiter
	ShowsPerHour  int
	TracksPerHour int
	// Health reports which collaborators are configured.
	Health     func() fiber.Map
	AccessLog  bool
	DebugLog   bool
	CORSOrigin string
}

// New builds the application with global middleware and all routes registered.
func New(h Handlers, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    bodyLimit,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		format := "[${time}] ${status} - ${latency} ${method} ${path}\n"
		if opts.DebugLog {
			format = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		}
		app.Use(logger.New(logger.Config{Format: format}))
	}
	origin := opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origin,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	Register(app, h, opts)
	return app
}

// Register mounts every route on app.
func Register(app *fiber.App, h Handlers, opts Options) {
	rl := opts.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(nil)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{}
		if opts.Health != nil {
			services = opts.Health()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	// ForwardAuth verification endpoint (called by the gateway)
	app.Get("/auth/verify", h.Auth.Verify)

	// Public routes
	app.Get("/share/:shareId", h.Show.Share)
	app.Post("/callbacks/suno", h.Callback.Suno)

	api := app.Group("/api", opts.APIAuth)

	shows := api.Group("/shows")
	shows.Post("/", rl.ShowLimit(opts.ShowsPerHour), h.Show.Create)
	shows.Post("/:projectId/start", rl.ShowLimit(opts.ShowsPerHour), h.Show.Start)
	shows.Post("/:projectId/choose", h.Show.Choose)
	shows.Post("/:projectId/batch", h.Track.Batch)
	shows.Get("/:projectId", h.Show.Get)
	shows.Get("/:projectId/logs", h.Show.Logs)

	tracks := shows.Group("/:projectId/tracks/:trackNumber")
	tracks.Post("/generate", rl.TrackLimit(opts.TracksPerHour), h.Track.Generate)
	tracks.Put("/lyrics", h.Track.SetLyrics)

	if h.WebSocket != nil {
		app.Use("/ws", h.WebSocket.Upgrade)
		app.Get("/ws/shows/:projectId", h.WebSocket.Show())
	}
}

// ErrorHandler renders errors that escape a handler in the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := response.CodeServiceError
		switch fe.Code {
		case fiber.StatusNotFound:
			code = response.CodeNotFound
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUpgradeRequired:
			code = response.CodeValidationError
		case fiber.StatusUnauthorized:
			code = response.CodeUnauthorized
		}
		return response.Error(c, fe.Code, code, fe.Message, nil)
	}

	slog.Error("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
	return response.ServiceError(c, "Internal Server Error")
}
