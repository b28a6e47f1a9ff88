package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/internal/apperror"
	"github.com/menta2k/dental-analyzer/internal/config"
	"github.com/menta2k/dental-analyzer/internal/metrics"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

// Analyzer is the analysis surface the HTTP handlers need
type Analyzer interface {
	AnalyzeReader(ctx context.Context, r io.Reader, fileName, mediaType string) (*types.Report, error)
	AnalyzeDataURI(ctx context.Context, dataURI, fileName string) (*types.Report, error)
}

// Params are the dependencies for creating a Server
type Params struct {
	Config   *config.Config
	Analyzer Analyzer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Version  string
}

// Server is the HTTP surface of the analyzer
type Server struct {
	echo     *echo.Echo
	cfg      config.ServerConfig
	analyzer Analyzer
	logger   *zap.Logger
	version  string
	startAt  time.Time
}

// New creates and configures the Echo instance and routes
func New(p Params) *Server {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/health" || path == "/metrics"
			},
			LogURI:       true,
			LogStatus:    true,
			LogLatency:   true,
			LogError:     true,
			LogMethod:    true,
			LogRequestID: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
					zap.String("request_id", v.RequestID),
				}
				if v.Error != nil {
					log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				} else {
					log.Info("request", fields...)
				}
				return nil
			},
		}),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				log.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
				return err
			},
		}),
	)

	s := &Server{
		echo:     e,
		cfg:      p.Config.Server,
		analyzer: p.Analyzer,
		logger:   log,
		version:  p.Version,
		startAt:  time.Now(),
	}

	e.GET("/health", s.health)
	if p.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(p.Metrics.Handler()))
	}

	api := e.Group("/api/v1")
	api.POST("/analyses", s.createAnalysis, middleware.BodyLimit(bodyLimit(p.Config.Analyzer.MaxUploadBytes)))

	return s
}

// bodyLimit leaves room for base64 expansion and multipart framing
func bodyLimit(maxUpload int64) string {
	kb := (maxUpload*4/3)/1024 + 64
	return fmt.Sprintf("%dK", kb)
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("address", srv.Addr))
		if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
