package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps an error code to the HTTP status returned to clients.
func httpStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrInvalidTable, apperrors.ErrInvalidOperation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrQueueFull:
		return http.StatusConflict
	case apperrors.ErrRemoteRejected, apperrors.ErrSyncFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   errorBody
	)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		body = errorBody{Code: http.StatusText(he.Code), Message: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok {
			body.Message = msg
		}
	} else {
		code := apperrors.CodeOf(err)
		status = httpStatus(code)
		body = errorBody{Code: string(code), Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		logging.Component("api").Error("Request failed", err, map[string]interface{}{
			"method": c.Request().Method,
			"path":   c.Path(),
		})
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(status)
		return
	}
	c.JSON(status, map[string]interface{}{"error": body})
}

// requestLogger logs each request through the structured logger.
func requestLogger() echo.MiddlewareFunc {
	log := logging.Component("api")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("Request handled", map[string]interface{}{
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return nil
		}
	}
}
