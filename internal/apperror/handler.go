package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPErrorHandler returns an Echo error handler that renders errors as
// {"error": {"code": ..., "message": ...}}
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		errorObj := map[string]any{
			"code":    "internal_error",
			"message": "An internal error occurred",
		}

		var appErr *Error
		var he *echo.HTTPError
		if errors.As(err, &appErr) {
			code = appErr.HTTPStatus
			errorObj["code"] = appErr.Code
			errorObj["message"] = appErr.Message
		} else if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				errorObj["message"] = msg
			}
			switch code {
			case http.StatusBadRequest:
				errorObj["code"] = "bad_request"
			case http.StatusNotFound:
				errorObj["code"] = ErrNotFound.Code
			case http.StatusMethodNotAllowed:
				errorObj["code"] = "method_not_allowed"
			case http.StatusRequestEntityTooLarge:
				errorObj["code"] = "image_too_large"
			}
		}

		if code >= 500 {
			log.Error("request error", zap.Int("status", code), zap.Error(err))
		} else {
			log.Debug("request rejected", zap.Int("status", code), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
		} else {
			_ = c.JSON(code, map[string]any{"error": errorObj})
		}
	}
}
