package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Kavirubc/gh-triage/internal/cache"
	"github.com/Kavirubc/gh-triage/internal/engine"
	"github.com/Kavirubc/gh-triage/internal/evidence"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/pipeline"
	"github.com/Kavirubc/gh-triage/internal/triage"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, engine.ErrInvalidRequest), errors.Is(err, engine.ErrBatchTooLarge):
		return fiber.StatusBadRequest
	case errors.Is(err, engine.ErrNotAnalyzed), errors.Is(err, cache.ErrNotCached), errors.Is(err, github.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, pipeline.ErrSkipped):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, github.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, github.ErrAuthFailed):
		return fiber.StatusUnauthorized
	case errors.Is(err, triage.ErrSynthesisFailed), errors.Is(err, models.ErrOutOfTaxonomy):
		return fiber.StatusBadGateway
	case errors.Is(err, evidence.ErrRetrievalDegraded), errors.Is(err, engine.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			log.Error("server", "Request failed", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
				"error":  err.Error(),
			})
		}
		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
}
