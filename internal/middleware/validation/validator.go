package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxReviewChars      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware guards review submissions: it rejects unknown content types and
// reviews longer than MaxReviewChars before they reach the controller. Missing
// fields are left to the form validation so they surface as a form notice.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxReviewChars == 0 {
		cfg.MaxReviewChars = 10000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{
			fiber.MIMEApplicationJSON,
			fiber.MIMEApplicationForm,
			fiber.MIMEMultipartForm,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowed(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		text, err := reviewText(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if n := utf8.RuneCountInString(text); n > cfg.MaxReviewChars {
			cfg.Logger.Warn("Review exceeds maximum length",
				zap.String("ip", c.IP()),
				zap.Int("length", n),
				zap.Int("max", cfg.MaxReviewChars),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Review exceeds maximum length",
			})
		}

		return c.Next()
	}
}

func allowed(contentType string, types []string) bool {
	for _, t := range types {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func reviewText(c *fiber.Ctx) (string, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var body struct {
			Review string `json:"review"`
		}
		if len(c.Body()) == 0 {
			return "", nil
		}
		if err := c.BodyParser(&body); err != nil {
			return "", err
		}
		return body.Review, nil
	}
	return c.FormValue("review"), nil
}
