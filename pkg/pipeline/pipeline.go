// Package pipeline sequences one dental analysis: decode and normalize the
// upload, run the optional model probe, synthesize findings, annotate the
// raster and score the result.
//
// Analyze never fails. Any error or panic after the input is accepted turns
// into the fixed fallback result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/internal/logging"
	"github.com/menta2k/dental-analyzer/pkg/analyzer"
	"github.com/menta2k/dental-analyzer/pkg/annotate"
	"github.com/menta2k/dental-analyzer/pkg/findings"
	"github.com/menta2k/dental-analyzer/pkg/probe"
	"github.com/menta2k/dental-analyzer/pkg/processing"
	"github.com/menta2k/dental-analyzer/pkg/scoring"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

// Analysis outcomes reported to the Observer
const (
	OutcomeComplete = "complete"
	OutcomeFallback = "fallback"
)

var errNoFindings = errors.New("synthesizer produced no findings")

// Decoder turns an upload data URI into an image
type Decoder interface {
	DecodeDataURI(dataURI string) (image.Image, error)
}

// Normalizer bounds an image to the working canvas size
type Normalizer interface {
	Normalize(img image.Image) *image.NRGBA
}

// Synthesizer produces findings for a canvas of the given size
type Synthesizer interface {
	Synthesize(width, height int) []types.DetectedIssue
}

// Annotator draws findings onto a raster and encodes it
type Annotator interface {
	Annotate(raster *image.NRGBA, issues []types.DetectedIssue) (string, error)
}

// ScoreFunc computes overall health from findings
type ScoreFunc func(issues []types.DetectedIssue) (types.OverallHealth, error)

// Observer receives per-analysis telemetry
type Observer interface {
	ObserveProbe(outcome string)
	ObserveAnalysis(outcome string, elapsed time.Duration, score int)
}

type nopObserver struct{}

func (nopObserver) ObserveProbe(string) {}
func (nopObserver) ObserveAnalysis(string, time.Duration, int) {}

// Pipeline runs analyses. It is safe for concurrent use when its parts are.
type Pipeline struct {
	decoder     Decoder
	normalizer  Normalizer
	prober      probe.Prober
	synthesizer Synthesizer
	annotator   Annotator
	score       ScoreFunc
	observer    Observer
	logger      *zap.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithDecoder sets the upload decoder
func WithDecoder(d Decoder) Option { return func(p *Pipeline) { p.decoder = d } }

// WithNormalizer sets the canvas normalizer
func WithNormalizer(n Normalizer) Option { return func(p *Pipeline) { p.normalizer = n } }

// WithProber sets the model probe
func WithProber(pr probe.Prober) Option { return func(p *Pipeline) { p.prober = pr } }

// WithSynthesizer sets the finding synthesizer
func WithSynthesizer(s Synthesizer) Option { return func(p *Pipeline) { p.synthesizer = s } }

// WithAnnotator sets the annotator
func WithAnnotator(a Annotator) Option { return func(p *Pipeline) { p.annotator = a } }

// WithScoreFunc sets the health scorer
func WithScoreFunc(f ScoreFunc) Option { return func(p *Pipeline) { p.score = f } }

// WithObserver sets the telemetry sink
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New creates a Pipeline with default parts and a disabled probe
func New(opts ...Option) *Pipeline {
	processor := processing.NewProcessor()
	p := &Pipeline{
		decoder:     analyzer.New(),
		normalizer:  processor,
		prober:      probe.New(nil, probe.Config{}, nil),
		synthesizer: findings.New(nil),
		annotator:   annotate.New(processor),
		score:       scoring.Score,
		observer:    nopObserver{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	return p
}

// Analyze runs one analysis on a data URI. progress may be nil.
func (p *Pipeline) Analyze(ctx context.Context, dataURI string, progress ProgressFunc) (result types.AnalysisResult) {
	start := time.Now()
	logger := logging.FromContext(ctx, p.logger)
	report := func(s State) {
		if progress != nil {
			progress(Progress{State: s, Name: s.String(), Step: s.Step()})
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked, using fallback", zap.Any("panic", r), zap.Stack("stack"))
			result = p.fallback(logger, dataURI, start, report)
		}
	}()

	result, err := p.run(ctx, logger, dataURI, report)
	if err != nil {
		logger.Warn("analysis failed, using fallback", zap.Error(err))
		return p.fallback(logger, dataURI, start, report)
	}

	report(StateComplete)
	p.observer.ObserveAnalysis(OutcomeComplete, time.Since(start), result.OverallHealth.Score)
	logger.Info("analysis complete",
		zap.Int("findings", len(result.Issues)),
		zap.Int("score", result.OverallHealth.Score),
		zap.String("status", result.OverallHealth.Status),
		zap.Duration("elapsed", time.Since(start)))
	return result
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger, dataURI string, report func(State)) (types.AnalysisResult, error) {
	report(StatePreparing)
	img, err := p.decoder.DecodeDataURI(dataURI)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("decode upload: %w", err)
	}
	raster := p.normalizer.Normalize(img)
	if raster == nil || raster.Bounds().Empty() {
		return types.AnalysisResult{}, annotate.ErrSurfaceUnavailable
	}
	bounds := raster.Bounds()
	logger.Debug("image normalized",
		zap.Int("source_width", img.Bounds().Dx()),
		zap.Int("source_height", img.Bounds().Dy()),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()))

	report(StateProbing)
	probeReport := p.prober.Probe(ctx, raster)
	p.observer.ObserveProbe(string(probeReport.Outcome))

	report(StateSynthesizing)
	issues := p.synthesizer.Synthesize(bounds.Dx(), bounds.Dy())
	if len(issues) == 0 {
		return types.AnalysisResult{}, errNoFindings
	}

	report(StateAnnotating)
	processed, err := p.annotator.Annotate(raster, issues)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("annotate: %w", err)
	}

	report(StateScoring)
	health, err := p.score(issues)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("score: %w", err)
	}

	return types.AnalysisResult{
		Issues:            issues,
		OverallHealth:     health,
		ProcessedImageURL: processed,
	}, nil
}

func (p *Pipeline) fallback(logger *zap.Logger, dataURI string, start time.Time, report func(State)) types.AnalysisResult {
	result := Fallback(dataURI)
	func() {
		// a panicking progress callback must not escape the fallback path
		defer func() {
			if r := recover(); r != nil {
				logger.Error("progress callback panicked", zap.Any("panic", r))
			}
		}()
		report(StateFallback)
	}()
	p.observer.ObserveAnalysis(OutcomeFallback, time.Since(start), result.OverallHealth.Score)
	return result
}

// Fallback returns the fixed result used when an analysis cannot complete.
// The processed image is the original upload.
func Fallback(dataURI string) types.AnalysisResult {
	return types.AnalysisResult{
		Issues: []types.DetectedIssue{
			{
				Disease:      "General Assessment",
				Location:     "Overall oral health",
				Severity:     types.SeverityLow,
				AffectedArea: 5,
				Confidence:   75,
				Recommendations: []string{
					"Regular dental checkups recommended",
					"Maintain good oral hygiene",
				},
				Color: "bg-green-500",
			},
		},
		OverallHealth: types.OverallHealth{
			Score:       75,
			Status:      scoring.StatusGood,
			NextCheckup: scoring.CheckupSixMonths,
		},
		ProcessedImageURL: dataURI,
	}
}
