package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// StatusFor maps an error returned by a service to its HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrInsufficientStock),
		errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every handler error as {"error": "..."}. Server
// errors are logged and their details hidden from the client.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := StatusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Error("request failed")
			msg = http.StatusText(status)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, map[string]string{"error": msg})
		}
		if err != nil {
			log.WithError(err).Warn("failed to write error response")
		}
	}
}
