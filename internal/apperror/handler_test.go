package apperror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/pkg/analyzer"
)

func handle(t *testing.T, method string, err error) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(zap.NewNop())(err, c)

	if rec.Body.Len() == 0 {
		return rec.Code, nil
	}
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp["error"].(map[string]any)
}

func TestHTTPErrorHandlerAppError(t *testing.T) {
	code, body := handle(t, http.MethodPost, NewBadRequest("invalid input"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["code"])
	assert.Equal(t, "invalid input", body["message"])
}

func TestHTTPErrorHandlerWrappedAppError(t *testing.T) {
	code, body := handle(t, http.MethodPost, fmt.Errorf("handler: %w", ErrTooLarge))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "image_too_large", body["code"])
}

func TestHTTPErrorHandlerEchoError(t *testing.T) {
	code, body := handle(t, http.MethodGet, echo.NewHTTPError(http.StatusNotFound, "resource not found"))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["code"])
	assert.Equal(t, "resource not found", body["message"])
}

func TestHTTPErrorHandlerUnknownError(t *testing.T) {
	code, body := handle(t, http.MethodGet, fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, "An internal error occurred", body["message"])
}

func TestHTTPErrorHandlerHead(t *testing.T) {
	code, body := handle(t, http.MethodHead, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Nil(t, body)
}

func TestFromIntake(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: 20 bytes", analyzer.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: text/plain", analyzer.ErrNotAnImage), http.StatusBadRequest},
		{analyzer.ErrInvalidDataURI, http.StatusBadRequest},
		{analyzer.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			appErr := FromIntake(tt.err)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
			assert.ErrorIs(t, appErr, tt.err)
		})
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "bad_request: Invalid request", ErrBadRequest.Error())
	assert.Contains(t, ErrInternal.WithInternal(fmt.Errorf("x")).Error(), "(x)")
}
