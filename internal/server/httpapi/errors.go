package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/gofiber/fiber/v2"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the common error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrorInvalidLoginInput):
		return fiber.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden), errors.Is(err, common.ErrorExpired):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, common.ErrorTooManyAttempts):
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// writeError renders err as {"error": "..."}. Internal failures get a
// generic message and are logged instead of echoed.
func writeError(c *fiber.Ctx, l logging.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		l.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
		msg = common.ErrorInternal.Error()
	}
	return c.Status(status).JSON(errorResponse{Error: msg})
}

func (s *Server) fiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
	}
	return writeError(c, s.logger, err)
}
