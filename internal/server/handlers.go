package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/internal/apperror"
	"github.com/menta2k/dental-analyzer/internal/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// AnalysisRequest is the JSON body of POST /api/v1/analyses
type AnalysisRequest struct {
	Image    string `json:"image"`
	FileName string `json:"fileName"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "dental-analyzer",
		Version: s.version,
		Uptime:  time.Since(s.startAt).Round(time.Second).String(),
	})
}

// createAnalysis accepts either a multipart "image" file or a JSON data URI
func (s *Server) createAnalysis(c echo.Context) error {
	ctx := c.Request().Context()
	contentType := c.Request().Header.Get(echo.HeaderContentType)

	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return apperror.NewBadRequest(`multipart field "image" is required`).WithInternal(err)
		}
		f, err := fh.Open()
		if err != nil {
			return apperror.NewBadRequest("could not read uploaded file").WithInternal(err)
		}
		defer f.Close()

		s.logger.Debug("multipart upload",
			zap.String("file", fh.Filename),
			zap.String("size", utils.FormatFileSize(fh.Size)))

		report, err := s.analyzer.AnalyzeReader(ctx, f, utils.SanitizeFilename(fh.Filename), fh.Header.Get(echo.HeaderContentType))
		if err != nil {
			return apperror.FromIntake(err)
		}
		return c.JSON(http.StatusOK, report)
	}

	var req AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("request body must be JSON or multipart/form-data").WithInternal(err)
	}
	if req.Image == "" {
		return apperror.NewBadRequest(`field "image" is required`)
	}

	report, err := s.analyzer.AnalyzeDataURI(ctx, req.Image, utils.SanitizeFilename(req.FileName))
	if err != nil {
		return apperror.FromIntake(err)
	}
	return c.JSON(http.StatusOK, report)
}
