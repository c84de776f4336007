package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs err and writes an ErrorResponse with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API request rejected", fields...)
	}
	return ctx.JSON(code, resp)
}

// errorHandler renders echo's own errors (404, 405, body limit) as ErrorResponse.
func (c *Controller) errorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = http.StatusText(code)
	}
	if herr := c.HandleError(ctx, err, message, code); herr != nil {
		c.log.Error("failed to write error response", logger.Error(herr))
	}
}
