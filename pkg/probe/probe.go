// Package probe runs a best-effort image classification against a vision
// backend. Its result is telemetry only: callers log it and move on.
package probe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/menta2k/dental-analyzer/pkg/client"
	"github.com/menta2k/dental-analyzer/pkg/processing"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

// DefaultTimeout bounds how long a caller waits for a probe
const DefaultTimeout = 10 * time.Second

// DefaultModel is a general-purpose vision model
const DefaultModel = "llava:7b"

// DefaultPrompt asks the backend for categorical labels
const DefaultPrompt = `You are a general-purpose image classifier.

Return JSON only:
{
  "labels": [{"label": "string", "score": 0.0}],
  "description": "short neutral sentence (≤ 15 words)"
}

RULES
- Up to 5 labels, most likely first, lowercase.
- Scores are probabilities in [0,1].
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// DescribePrompt asks for a plain-text description when classification yields nothing usable
const DescribePrompt = "Describe this image in one short neutral sentence."

var (
	// ErrProbeTimeout is reported when the probe does not settle in time
	ErrProbeTimeout = errors.New("model probe timed out")
	// ErrEmptyClassification is reported when a backend returns no result and no error
	ErrEmptyClassification = errors.New("empty classification")
	// ErrBackendPanic is reported when a backend call panics
	ErrBackendPanic = errors.New("vision backend panicked")
)

// unclassifiedLabel is the label client.ParseClassification uses for unusable replies
const unclassifiedLabel = "unclassified"

// Outcome describes how a probe settled
type Outcome string

const (
	OutcomeClassified Outcome = "classified"
	OutcomeFailed     Outcome = "failed"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeDisabled   Outcome = "disabled"
)

// Report is what the caller learns about a probe
type Report struct {
	Outcome Outcome
	Result  *types.ClassificationResult
	Err     error
	Elapsed time.Duration
}

// Prober runs one probe against a raster
type Prober interface {
	Probe(ctx context.Context, raster image.Image) Report
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, raster image.Image) Report

// Probe implements Prober
func (f ProberFunc) Probe(ctx context.Context, raster image.Image) Report {
	return f(ctx, raster)
}

// Config holds probe settings
type Config struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Probe classifies rasters through a VisionClient
type Probe struct {
	client    client.VisionClient
	config    Config
	processor *processing.Processor
	logger    *zap.Logger
}

// New creates a Probe. A nil client yields a probe that reports OutcomeDisabled.
func New(c client.VisionClient, config Config, logger *zap.Logger) *Probe {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		client:    c,
		config:    config,
		processor: processing.NewProcessor(),
		logger:    logger.Named("probe"),
	}
}

// Probe loads the model and classifies raster, waiting at most the configured timeout.
// A probe still running after the timeout keeps going in the background and its
// result is dropped.
func (p *Probe) Probe(ctx context.Context, raster image.Image) Report {
	if p.client == nil {
		return Report{Outcome: OutcomeDisabled}
	}

	start := time.Now()
	done := make(chan Report, 1)
	abandoned := atomic.NewBool(false)

	// The backend applies its own deadline; the wait below is what is bounded
	probeCtx := context.WithoutCancel(ctx)
	go func() {
		report := p.run(probeCtx, raster)
		report.Elapsed = time.Since(start)
		done <- report
		if abandoned.Load() {
			p.logger.Debug("late probe result discarded",
				zap.String("outcome", string(report.Outcome)),
				zap.Duration("elapsed", report.Elapsed))
		}
	}()

	timer := time.NewTimer(p.config.Timeout)
	defer timer.Stop()

	var report Report
	select {
	case report = <-done:
	case <-timer.C:
		abandoned.Store(true)
		report = Report{Outcome: OutcomeTimeout, Err: ErrProbeTimeout, Elapsed: time.Since(start)}
	case <-ctx.Done():
		abandoned.Store(true)
		report = Report{Outcome: OutcomeCanceled, Err: ctx.Err(), Elapsed: time.Since(start)}
	}

	p.log(report)
	return report
}

func (p *Probe) run(ctx context.Context, raster image.Image) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			report = Report{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrBackendPanic, r)}
		}
	}()

	if err := p.client.Load(ctx, p.config.Model); err != nil {
		return Report{Outcome: OutcomeFailed, Err: fmt.Errorf("load model: %w", err)}
	}

	imgB64, err := p.processor.PrepareImageForModel(raster, "jpg", 85)
	if err != nil {
		return Report{Outcome: OutcomeFailed, Err: fmt.Errorf("prepare image: %w", err)}
	}

	result, err := p.client.Classify(ctx, p.config.Model, p.config.Prompt, imgB64)
	if err != nil {
		return Report{Outcome: OutcomeFailed, Err: fmt.Errorf("classify: %w", err)}
	}
	if result == nil {
		return Report{Outcome: OutcomeFailed, Err: ErrEmptyClassification}
	}

	if top, ok := result.Top(); !ok || top.Label == unclassifiedLabel {
		// A free-text description still says something about the raster
		if text, err := p.client.SimpleQuery(ctx, p.config.Model, DescribePrompt, imgB64); err == nil && strings.TrimSpace(text) != "" {
			result.Description = strings.TrimSpace(text)
		} else if err != nil {
			p.logger.Debug("describe query failed", zap.Error(err))
		}
	}

	return Report{Outcome: OutcomeClassified, Result: result}
}

func (p *Probe) log(r Report) {
	fields := []zap.Field{
		zap.String("model", p.config.Model),
		zap.String("outcome", string(r.Outcome)),
		zap.Duration("elapsed", r.Elapsed),
	}

	if r.Outcome == OutcomeClassified && r.Result != nil {
		if top, ok := r.Result.Top(); ok {
			fields = append(fields, zap.String("label", top.Label), zap.Float64("score", top.Score))
		}
		fields = append(fields, zap.Any("labels", r.Result.Labels), zap.String("description", r.Result.Description))
		p.logger.Info("model probe classification", fields...)
		return
	}

	if r.Err != nil {
		fields = append(fields, zap.Error(r.Err))
	}
	p.logger.Info("model probe did not classify", fields...)
}
