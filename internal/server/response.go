package server

import (
	"errors"
	"log/slog"
	"strings"

	"quill/internal/models"
	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
)

var errTooManyRequests = models.NewRateLimitError("Too many requests, please try again later.")

// errorBody is the error half of the response envelope.
type errorBody struct {
	Message    string              `json:"message"`
	StatusCode int                 `json:"statusCode"`
	Code       string              `json:"code"`
	Details    []models.FieldError `json:"details,omitempty"`
	Stack      []string            `json:"stack,omitempty"`
}

// respondSuccess writes {success:true, data, message?}.
func respondSuccess(c *fiber.Ctx, status int, data interface{}, message ...string) error {
	body := fiber.Map{"success": true, "data": data}
	if len(message) > 0 && message[0] != "" {
		body["message"] = message[0]
	}
	return c.Status(status).JSON(body)
}

// respondError translates err and writes {success:false, error:{...}}. The error chain
// is included as stack outside production.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	appErr := models.Translate(err)

	if appErr.Status >= fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", appErr.Status),
			slog.String("error", err.Error()),
		)
	}

	body := errorBody{
		Message:    appErr.Message,
		StatusCode: appErr.Status,
		Code:       appErr.Code,
		Details:    appErr.Details,
	}
	if s.config == nil || !s.config.IsProduction() {
		body.Stack = errorChain(err)
	}
	return c.Status(appErr.Status).JSON(fiber.Map{"success": false, "error": body})
}

// errorHandler is the Fiber ErrorHandler; every error returned by a handler ends here.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	return s.respondError(c, err)
}

func errorChain(err error) []string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.TrimSpace(e.Error())
		if msg == "" || (len(chain) > 0 && chain[len(chain)-1] == msg) {
			continue
		}
		chain = append(chain, msg)
	}
	return chain
}
