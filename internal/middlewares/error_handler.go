package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/classmeet/params"
)

// ErrorHandler writes errors that escaped the handlers as a JSON API error.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled error", "path", ctx.Path(), "code", code, "error", err)
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(fiber.Map{
		"apiVersion": params.APIVersion,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}
