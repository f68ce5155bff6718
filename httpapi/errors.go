package httpapi

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lazarus/middleware/jwtware"
	"github.com/goliatone/go-print"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message  string            `json:"message"`
	TextCode string            `json:"text_code,omitempty"`
	Category string            `json:"category,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// StatusFor maps an error to its HTTP status by category
func StatusFor(err error) int {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return fiber.StatusUnauthorized
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryNotFound:
			return fiber.StatusNotFound
		case goerrors.CategoryAuth:
			return fiber.StatusUnauthorized
		case goerrors.CategoryAuthz:
			return fiber.StatusForbidden
		case goerrors.CategoryConflict:
			return fiber.StatusConflict
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return fiber.StatusBadRequest
		case goerrors.CategoryRateLimit:
			return fiber.StatusTooManyRequests
		case goerrors.CategoryOperation:
			return fiber.StatusBadGateway
		}
		return fiber.StatusInternalServerError
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return fiber.StatusBadRequest
	}

	return fiber.StatusInternalServerError
}

func errorBody(err error, status int) ErrorBody {
	detail := ErrorDetail{Message: err.Error()}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		detail.Message = richErr.Message
		detail.TextCode = richErr.TextCode
		detail.Category = fmt.Sprint(richErr.Category)
		detail.Metadata = richErr.Metadata
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		detail.Fields = make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			detail.Fields[field] = ferr.Error()
		}
	}

	if status >= fiber.StatusInternalServerError {
		detail.Message = "internal server error"
		detail.Metadata = nil
	}
	return ErrorBody{Error: detail}
}

// HandleError writes the error envelope. Server errors are logged with
// their metadata.
func (h *Controller) HandleError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}
	status := StatusFor(err)

	var meta map[string]any
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		meta = richErr.Metadata
	}

	switch {
	case status >= fiber.StatusInternalServerError:
		h.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err.Error(),
			"metadata", print.MaybePrettyJSON(meta),
		)
	case h.debug:
		h.logger.Debug("request rejected",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err.Error(),
			"metadata", print.MaybePrettyJSON(meta),
		)
	}

	return c.Status(status).JSON(errorBody(err, status))
}

func badInput(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, message).
		WithCode(goerrors.CodeBadRequest)
}
