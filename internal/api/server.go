package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/review-moderation/backend/internal/api/handlers"
	"github.com/review-moderation/backend/internal/metrics"
	"github.com/review-moderation/backend/internal/middleware/security"
	"github.com/review-moderation/backend/internal/middleware/validation"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/pkg/logger"
)

type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BodyLimit      int
	MaxReviewChars int
	AllowedOrigins []string
	IsDevelopment  bool
	SessionTTL     time.Duration
	AccessLog      bool
}

func NewApp(opts Options, controller *reviewform.Controller) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "review-moderation",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}

	allowOrigins := "*"
	if len(opts.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(opts.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: opts.AllowedOrigins,
		IsDevelopment:  opts.IsDevelopment,
	}))

	validate := validation.Middleware(validation.Config{
		MaxReviewChars: opts.MaxReviewChars,
		Logger:         logger.GetLogger(),
	})

	reviewHandler := handlers.NewReviewHandler(controller)
	pageHandler := handlers.NewPageHandler(controller, opts.SessionTTL)
	wsHandler := handlers.NewWebSocketHandler(controller)

	app.Get("/", pageHandler.Show)
	app.Post("/review", validate, pageHandler.Submit)

	api := app.Group("/api/v1")

	api.Post("/sessions", reviewHandler.CreateSession)
	api.Get("/sessions/:id", reviewHandler.GetSession)
	api.Delete("/sessions/:id", reviewHandler.DeleteSession)
	api.Post("/sessions/:id/reviews", validate, reviewHandler.SubmitReview)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/sessions/:id", websocket.New(wsHandler.HandleConnection))

	return app
}
