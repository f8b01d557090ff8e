package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/securesteps/auth-service/internal/auth/dto"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const genericErrorMessage = "internal server error"

var statusByKind = map[autherror.Kind]int{
	autherror.KindValidation:      fiber.StatusBadRequest,
	autherror.KindAuthentication:  fiber.StatusUnauthorized,
	autherror.KindForbidden:       fiber.StatusForbidden,
	autherror.KindNotFound:        fiber.StatusNotFound,
	autherror.KindConflict:        fiber.StatusConflict,
	autherror.KindTooManyRequests: fiber.StatusTooManyRequests,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByKind[autherror.KindOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error returned by a route. In production only
// sentinel messages reach the client; server errors always get a generic
// message there and are logged with the request id.
func ErrorHandler(production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		resp := dto.ErrorResponse{RequestID: c.GetRespHeader(fiber.HeaderXRequestID)}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			resp.Error = fiberErr.Message
			return c.Status(fiberErr.Code).JSON(resp)
		}

		status := StatusFor(err)
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			resp.Error = autherror.ErrValidation.Error()
			resp.Details = validationErr.Details
		case status >= fiber.StatusInternalServerError:
			log.Printf("error: request_id=%s %s %s: %v", resp.RequestID, c.Method(), c.Path(), err)
			resp.Error = genericErrorMessage
			if !production {
				resp.Error = err.Error()
			}
		case production:
			resp.Error = autherror.Sentinel(err).Error()
		default:
			resp.Error = err.Error()
		}

		return c.Status(status).JSON(resp)
	}
}
