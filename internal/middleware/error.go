package middleware

import (
	stderrors "errors"

	"github.com/gofiber/fiber/v2"

	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/models"
)

// ErrorHandler translates surfaced errors into {code, message} bodies.
// Coded service errors keep their code and mapped status; everything else
// degrades to a generic internal error without leaking internals.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		detail := models.ErrorDetail{
			Code:    errors.CodeInternal,
			Message: "internal error",
		}

		var svcErr *errors.Error
		var fiberErr *fiber.Error
		switch {
		case stderrors.As(err, &svcErr):
			status = errors.HTTPStatus(svcErr.Code)
			detail.Code = svcErr.Code
			detail.Message = svcErr.Message
			detail.Details = svcErr.Details
		case stderrors.As(err, &fiberErr):
			status = fiberErr.Code
			detail.Code = errors.CodeInternal
			detail.Message = fiberErr.Message
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"error", err)
		}

		return c.Status(status).JSON(models.ErrorResponse{Error: detail})
	}
}
