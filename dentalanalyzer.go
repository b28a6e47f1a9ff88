// Package dentalanalyzer turns an uploaded mouth photo into a dental analysis
// report: a list of findings with bounding boxes, an annotated preview image
// and an overall health score.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		dentalanalyzer "github.com/menta2k/dental-analyzer"
//	)
//
//	func main() {
//		a := dentalanalyzer.New()
//
//		report, err := a.AnalyzeFile(context.Background(), "smile.jpg")
//		if err != nil {
//			log.Fatal(err) // not an image, or too large
//		}
//
//		health := report.Result.OverallHealth
//		fmt.Printf("%d (%s), next checkup in %s\n", health.Score, health.Status, health.NextCheckup)
//		for _, issue := range report.Result.Issues {
//			fmt.Printf("- %s at %s (%s, %d%%)\n", issue.Disease, issue.Location, issue.Severity, issue.Confidence)
//		}
//	}
//
// An analysis runs in fixed stages:
//
// 1. Intake (pkg/analyzer): accepts image/* payloads and decodes them
// 2. Processing (pkg/processing): scales the image to a 384px working canvas
// 3. Probe (pkg/probe): optionally asks a vision model for labels, logged only
// 4. Findings (pkg/findings): synthesizes catalog findings with boxes
// 5. Annotate (pkg/annotate): draws the boxes and labels onto the canvas
// 6. Scoring (pkg/scoring): computes the overall health score
//
// Analysis itself never fails. When a stage errors, the result is a single
// "General Assessment" finding scored 75 with the original image attached.
package dentalanalyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/internal/config"
	"github.com/menta2k/dental-analyzer/internal/logging"
	"github.com/menta2k/dental-analyzer/pkg/analyzer"
	"github.com/menta2k/dental-analyzer/pkg/annotate"
	"github.com/menta2k/dental-analyzer/pkg/client"
	"github.com/menta2k/dental-analyzer/pkg/findings"
	"github.com/menta2k/dental-analyzer/pkg/llamacpp"
	"github.com/menta2k/dental-analyzer/pkg/ollama"
	"github.com/menta2k/dental-analyzer/pkg/pipeline"
	"github.com/menta2k/dental-analyzer/pkg/probe"
	"github.com/menta2k/dental-analyzer/pkg/processing"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

// Version of the dental analyzer library
const Version = "1.0.0"

// Analyzer provides a high-level interface for dental analyses
type Analyzer struct {
	intake   *analyzer.ImageAnalyzer
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

type options struct {
	logger   *zap.Logger
	observer pipeline.Observer
	rng      findings.Rand
	client   client.VisionClient
}

// Option customizes an Analyzer
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the telemetry sink, typically *metrics.Metrics
func WithObserver(obs pipeline.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithRand sets the random source used for finding synthesis
func WithRand(rng findings.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithVisionClient sets the probe backend, overriding the configured one
func WithVisionClient(c client.VisionClient) Option {
	return func(o *options) { o.client = c }
}

// New creates a new Analyzer with default configuration
func New(opts ...Option) *Analyzer {
	a, err := NewWithConfig(config.Default(), opts...)
	if err != nil {
		// the default configuration is always valid
		panic(err)
	}
	return a
}

// NewWithConfig creates a new Analyzer from cfg
func NewWithConfig(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	intake := analyzer.NewWithConfig(analyzer.Config{
		SupportedFormats: cfg.Analyzer.SupportedFormats,
		MinImageSize:     cfg.Analyzer.MinImageSize,
		MaxBytes:         cfg.Analyzer.MaxUploadBytes,
	})
	processor := processing.NewProcessorWithMaxDimension(cfg.Normalizer.MaxDimension)

	visionClient := o.client
	if visionClient == nil && cfg.Probe.Enabled {
		var err error
		if visionClient, err = NewVisionClient(cfg.Probe); err != nil {
			return nil, err
		}
	}

	prober := probe.New(visionClient, probe.Config{
		Model:   cfg.Probe.Model,
		Prompt:  cfg.Probe.Prompt,
		Timeout: cfg.Probe.Timeout,
	}, o.logger)

	annotator := annotate.NewWithConfig(processor, annotate.Config{
		Format:   cfg.Annotator.Format,
		Quality:  cfg.Annotator.Quality,
		Lossless: cfg.Annotator.Lossless,
	})

	p := pipeline.New(
		pipeline.WithDecoder(intake),
		pipeline.WithNormalizer(processor),
		pipeline.WithProber(prober),
		pipeline.WithSynthesizer(findings.New(o.rng)),
		pipeline.WithAnnotator(annotator),
		pipeline.WithObserver(o.observer),
		pipeline.WithLogger(o.logger),
	)

	return &Analyzer{
		intake:   intake,
		pipeline: p,
		logger:   o.logger,
		now:      time.Now,
	}, nil
}

// NewVisionClient builds the probe backend named by cfg.Backend
func NewVisionClient(cfg config.ProbeConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return c, nil
	case config.BackendLlamaCPP:
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown probe backend %q", cfg.Backend)
	}
}

// Analyze runs an analysis on an image data URI. It always returns a valid result.
func (a *Analyzer) Analyze(ctx context.Context, dataURI string) types.AnalysisResult {
	return a.AnalyzeWithProgress(ctx, dataURI, nil)
}

// AnalyzeWithProgress is Analyze with a progress callback
func (a *Analyzer) AnalyzeWithProgress(ctx context.Context, dataURI string, progress pipeline.ProgressFunc) types.AnalysisResult {
	if _, ok := logging.AnalysisID(ctx); !ok {
		ctx = logging.WithAnalysisID(ctx, uuid.NewString())
	}
	return a.pipeline.Analyze(ctx, dataURI, progress)
}

// AnalyzeUpload analyzes an accepted upload and wraps the result in a report
func (a *Analyzer) AnalyzeUpload(ctx context.Context, upload *analyzer.Upload, fileName string, progress pipeline.ProgressFunc) *types.Report {
	id := uuid.NewString()
	ctx = logging.WithAnalysisID(ctx, id)

	logging.FromContext(ctx, a.logger).Info("analysis started",
		zap.String("file", fileName),
		zap.String("media_type", upload.MediaType),
		zap.Int("bytes", len(upload.Data)))

	result := a.pipeline.Analyze(ctx, upload.Preview, progress)
	return NewReport(id, fileName, upload.Preview, result, a.now())
}

// AnalyzeReader reads an image payload and analyzes it. An error means the
// payload was rejected before analysis: it is not an image or it is too large.
func (a *Analyzer) AnalyzeReader(ctx context.Context, r io.Reader, fileName, mediaType string) (*types.Report, error) {
	upload, err := a.intake.NewUpload(r, mediaType)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeUpload(ctx, upload, fileName, nil), nil
}

// AnalyzeDataURI checks an image data URI against the intake rules and analyzes it
func (a *Analyzer) AnalyzeDataURI(ctx context.Context, dataURI, fileName string) (*types.Report, error) {
	mediaType, data, err := analyzer.ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeReader(ctx, bytes.NewReader(data), fileName, mediaType)
}

// AnalyzeFile analyzes an image from a file path or an http(s) URL
func (a *Analyzer) AnalyzeFile(ctx context.Context, source string) (*types.Report, error) {
	upload, err := a.intake.LoadUploadSmart(source)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeUpload(ctx, upload, source, nil), nil
}

// NewReport wraps a result with the metadata a results view displays.
// An empty id gets a fresh UUID.
func NewReport(id, fileName, imageData string, result types.AnalysisResult, at time.Time) *types.Report {
	if id == "" {
		id = uuid.NewString()
	}
	return &types.Report{
		ID:           id,
		FileName:     fileName,
		AnalysisDate: at.UTC(),
		ImageData:    imageData,
		Result:       result,
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
