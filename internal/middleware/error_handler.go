package middleware

import (
	"errors"

	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Application errors map onto the
// error taxonomy (code + retryability in details); everything else is a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		details := fiber.Map{
			"code":      string(ae.Code),
			"retryable": ae.Retryable(),
		}
		if ae.Code == apperror.CodeInternal || ae.Code == apperror.CodeExternalLedgerFailure {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		return response.Error(c, ae.Message, ae.HTTPStatus(), details)
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}
	return response.Error(c, message, code, fiber.Map{})
}
