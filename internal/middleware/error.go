package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/models"
)

// ErrorHandler turns unhandled errors into the JSON error envelope. Fiber
// errors keep their status and message; anything else becomes a 500 with
// the original message withheld from the response.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", code,
			"error", err,
		}
		if id := c.Get("X-Request-ID"); id != "" {
			fields = append(fields, "request_id", id)
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("Request error", fields...)
		} else {
			logger.Warn("Request rejected", fields...)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    errorCode(code),
				Message: message,
				Path:    c.Path(),
			},
		})
	}
}

// errorCode renders a status as the envelope's machine-readable code,
// e.g. 404 -> NOT_FOUND.
func errorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
