package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/dental-analyzer/pkg/analyzer"
	"github.com/menta2k/dental-analyzer/pkg/findings"
	"github.com/menta2k/dental-analyzer/pkg/probe"
	"github.com/menta2k/dental-analyzer/pkg/scoring"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 180, 255})
		}
	}
	return img
}

func testDataURI(t testing.TB, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(width, height)))
	return analyzer.EncodeDataURI("image/png", buf.Bytes())
}

type recorder struct {
	mu       sync.Mutex
	progress []Progress
}

func (r *recorder) record(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p.State)
	}
	return out
}

type observation struct {
	outcome string
	score   int
}

type fakeObserver struct {
	mu       sync.Mutex
	probes   []string
	analyses []observation
}

func (o *fakeObserver) ObserveProbe(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.probes = append(o.probes, outcome)
}

func (o *fakeObserver) ObserveAnalysis(outcome string, _ time.Duration, score int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.analyses = append(o.analyses, observation{outcome, score})
}

type panicSynthesizer struct{}

func (panicSynthesizer) Synthesize(int, int) []types.DetectedIssue { panic("synthesis exploded") }

type emptySynthesizer struct{}

func (emptySynthesizer) Synthesize(int, int) []types.DetectedIssue { return nil }

type failingAnnotator struct{}

func (failingAnnotator) Annotate(*image.NRGBA, []types.DetectedIssue) (string, error) {
	return "", errors.New("canvas lost")
}

// blockingClient never answers Classify until released
type blockingClient struct {
	release chan struct{}
}

func (c *blockingClient) Load(context.Context, string) error { return nil }

func (c *blockingClient) SimpleQuery(context.Context, string, string, string) (string, error) {
	return "", nil
}

func (c *blockingClient) Classify(context.Context, string, string, string) (*types.ClassificationResult, error) {
	<-c.release
	return &types.ClassificationResult{Labels: []types.Classification{{Label: "late", Score: 1}}}, nil
}

// misbehavingClient panics or answers with nothing
type misbehavingClient struct {
	panics bool
}

func (c misbehavingClient) Load(context.Context, string) error { return nil }

func (c misbehavingClient) SimpleQuery(context.Context, string, string, string) (string, error) {
	return "", nil
}

func (c misbehavingClient) Classify(context.Context, string, string, string) (*types.ClassificationResult, error) {
	if c.panics {
		panic("backend exploded")
	}
	return nil, nil
}

func assertFallback(t *testing.T, result types.AnalysisResult, dataURI string) {
	t.Helper()
	assert.Equal(t, Fallback(dataURI), result)
}

func TestAnalyzeCompletes(t *testing.T) {
	rec := &recorder{}
	obs := &fakeObserver{}
	p := New(
		WithSynthesizer(findings.New(findings.NewLockedRand(1, 2))),
		WithObserver(obs),
	)

	result := p.Analyze(context.Background(), testDataURI(t, 800, 400), rec.record)

	assert.Equal(t, []State{
		StatePreparing, StateProbing, StateSynthesizing, StateAnnotating, StateScoring, StateComplete,
	}, rec.states())
	assert.Equal(t, "Analysis complete", rec.progress[len(rec.progress)-1].Step)

	require.NotEmpty(t, result.Issues)
	assert.LessOrEqual(t, len(result.Issues), len(findings.Catalog))
	assert.True(t, strings.HasPrefix(result.ProcessedImageURL, "data:image/png;base64,"))

	expected, err := scoring.Score(result.Issues)
	require.NoError(t, err)
	assert.Equal(t, expected, result.OverallHealth)

	// boxes are laid out on the 384x192 working canvas
	for _, issue := range result.Issues {
		require.NotNil(t, issue.BoundingBox)
		assert.LessOrEqual(t, float64(issue.BoundingBox.X), 384*findings.OriginFraction)
		assert.LessOrEqual(t, float64(issue.BoundingBox.Y), 192*findings.OriginFraction)
	}

	require.Len(t, obs.analyses, 1)
	assert.Equal(t, OutcomeComplete, obs.analyses[0].outcome)
	assert.Equal(t, []string{string(probe.OutcomeDisabled)}, obs.probes)
}

func TestAnalyzeProcessedImageIsNormalized(t *testing.T) {
	p := New(WithSynthesizer(findings.New(findings.NewLockedRand(3, 4))))

	result := p.Analyze(context.Background(), testDataURI(t, 800, 400), nil)

	img, err := analyzer.New().DecodeDataURI(result.ProcessedImageURL)
	require.NoError(t, err)
	assert.Equal(t, 384, img.Bounds().Dx())
	assert.Equal(t, 192, img.Bounds().Dy())
}

func TestAnalyzeInvalidInputFallsBack(t *testing.T) {
	rec := &recorder{}
	obs := &fakeObserver{}
	input := "data:text/plain;base64,aGVsbG8="

	result := New(WithObserver(obs)).Analyze(context.Background(), input, rec.record)

	assertFallback(t, result, input)
	assert.Equal(t, []State{StatePreparing, StateFallback}, rec.states())
	assert.Equal(t, "Analysis completed with backup method", rec.progress[1].Step)
	require.Len(t, obs.analyses, 1)
	assert.Equal(t, observation{OutcomeFallback, 75}, obs.analyses[0])
}

func TestAnalyzeSynthesizerPanicFallsBack(t *testing.T) {
	rec := &recorder{}
	input := testDataURI(t, 64, 64)

	result := New(WithSynthesizer(panicSynthesizer{})).Analyze(context.Background(), input, rec.record)

	assertFallback(t, result, input)
	states := rec.states()
	assert.Equal(t, StateFallback, states[len(states)-1])
}

func TestAnalyzeEmptyFindingsFallsBack(t *testing.T) {
	input := testDataURI(t, 64, 64)
	result := New(WithSynthesizer(emptySynthesizer{})).Analyze(context.Background(), input, nil)
	assertFallback(t, result, input)
}

func TestAnalyzeAnnotatorErrorFallsBack(t *testing.T) {
	input := testDataURI(t, 64, 64)
	result := New(WithAnnotator(failingAnnotator{})).Analyze(context.Background(), input, nil)
	assertFallback(t, result, input)
}

func TestAnalyzeScoreErrorFallsBack(t *testing.T) {
	input := testDataURI(t, 64, 64)
	failing := func([]types.DetectedIssue) (types.OverallHealth, error) {
		return types.OverallHealth{}, scoring.ErrNoFindings
	}
	result := New(WithScoreFunc(failing)).Analyze(context.Background(), input, nil)
	assertFallback(t, result, input)
}

func TestAnalyzeProgressPanicFallsBack(t *testing.T) {
	input := testDataURI(t, 64, 64)
	calls := 0
	progress := func(p Progress) {
		calls++
		if p.State == StateSynthesizing {
			panic("ui went away")
		}
	}

	result := New().Analyze(context.Background(), input, progress)
	assertFallback(t, result, input)
	assert.Equal(t, 4, calls)
}

func TestAnalyzeProbeTimeoutIsBounded(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	defer close(client.release)

	obs := &fakeObserver{}
	p := New(
		WithProber(probe.New(client, probe.Config{Timeout: 50 * time.Millisecond}, nil)),
		WithObserver(obs),
	)

	start := time.Now()
	result := p.Analyze(context.Background(), testDataURI(t, 120, 90), nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotEqual(t, "General Assessment", result.Issues[0].Disease)
	assert.Equal(t, []string{string(probe.OutcomeTimeout)}, obs.probes)
}

func TestAnalyzeProbeResultDoesNotAffectFindings(t *testing.T) {
	input := testDataURI(t, 300, 200)
	classify := probe.ProberFunc(func(context.Context, image.Image) probe.Report {
		return probe.Report{
			Outcome: probe.OutcomeClassified,
			Result:  &types.ClassificationResult{Labels: []types.Classification{{Label: "cat", Score: 0.99}}},
		}
	})

	withProbe := New(
		WithSynthesizer(findings.New(findings.NewLockedRand(7, 7))),
		WithProber(classify),
	).Analyze(context.Background(), input, nil)

	withoutProbe := New(
		WithSynthesizer(findings.New(findings.NewLockedRand(7, 7))),
	).Analyze(context.Background(), input, nil)

	assert.Equal(t, withoutProbe, withProbe)
}

func TestAnalyzeMisbehavingBackendDoesNotAffectFindings(t *testing.T) {
	input := testDataURI(t, 64, 64)
	expected := New(
		WithSynthesizer(findings.New(findings.NewLockedRand(3, 3))),
	).Analyze(context.Background(), input, nil)

	tests := []struct {
		name   string
		client misbehavingClient
	}{
		{"panicking classify", misbehavingClient{panics: true}},
		{"nil classification", misbehavingClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &fakeObserver{}
			result := New(
				WithSynthesizer(findings.New(findings.NewLockedRand(3, 3))),
				WithProber(probe.New(tt.client, probe.Config{Timeout: time.Second}, nil)),
				WithObserver(obs),
			).Analyze(context.Background(), input, nil)

			assert.Equal(t, expected, result)
			assert.Equal(t, []string{string(probe.OutcomeFailed)}, obs.probes)
		})
	}
}

func TestAnalyzeCanceledContextStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New().Analyze(ctx, testDataURI(t, 64, 64), nil)
	require.NotEmpty(t, result.Issues)
	assert.NotEmpty(t, result.ProcessedImageURL)
}

func TestFallback(t *testing.T) {
	result := Fallback("data:image/png;base64,AAAA")

	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, "General Assessment", issue.Disease)
	assert.Equal(t, "Overall oral health", issue.Location)
	assert.Equal(t, types.SeverityLow, issue.Severity)
	assert.Equal(t, 5, issue.AffectedArea)
	assert.Equal(t, 75, issue.Confidence)
	assert.Equal(t, []string{"Regular dental checkups recommended", "Maintain good oral hygiene"}, issue.Recommendations)
	assert.Equal(t, "bg-green-500", issue.Color)
	assert.Nil(t, issue.BoundingBox)

	assert.Equal(t, types.OverallHealth{Score: 75, Status: "Good", NextCheckup: "6 months"}, result.OverallHealth)
	assert.Equal(t, "data:image/png;base64,AAAA", result.ProcessedImageURL)
}

func TestStateLabels(t *testing.T) {
	assert.Equal(t, "probing", StateProbing.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "Loading AI model...", StateProbing.Step())
	assert.Equal(t, "", StateIdle.Step())
	assert.True(t, StateFallback.Terminal())
	assert.False(t, StateScoring.Terminal())
}

func BenchmarkAnalyze(b *testing.B) {
	p := New(WithSynthesizer(findings.New(findings.NewLockedRand(1, 1))))
	input := testDataURI(b, 800, 600)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Analyze(context.Background(), input, nil)
	}
}
