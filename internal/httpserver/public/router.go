package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/speech_analysis/backend/internal/app"
)

// Register wires up the speech analysis API routes.
func Register(app *fiber.App, container *app.Container) {
	app.Get("/", root)
	app.Get("/health", health)

	handler := &analyzeHandler{container: container}
	app.Post("/analyze-audio", handler.analyzeAudio)
}

func root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Speech Analysis API is running"})
}

func health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "service": "Speech Analysis API"})
}
