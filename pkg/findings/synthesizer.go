// Package findings synthesizes detected-issue records from a fixed catalog.
//
// Selection always takes a prefix of the catalog, so earlier entries are
// reported more often than later ones. Bounding boxes are placed with their
// origin inside the left/top 60% of the raster and are not clamped against the
// right or bottom edge.
package findings

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/menta2k/dental-analyzer/pkg/types"
)

// Rand is the random source used for synthesis
type Rand interface {
	// Float64 returns a value in [0,1)
	Float64() float64
	// IntN returns a value in [0,n)
	IntN(n int) int
}

// Entry is a catalog template for one kind of finding
type Entry struct {
	Disease         string
	Location        string
	Severity        types.Severity
	Color           string
	Recommendations []string
}

// Catalog is the ordered list of candidate issues
var Catalog = []Entry{
	{
		Disease:         "Dental Plaque Buildup",
		Location:        "Upper molars",
		Severity:        types.SeverityMedium,
		Color:           "bg-yellow-500",
		Recommendations: []string{"Professional cleaning recommended", "Improve brushing technique", "Use fluoride toothpaste"},
	},
	{
		Disease:         "Gum Inflammation",
		Location:        "Lower gum line",
		Severity:        types.SeverityLow,
		Color:           "bg-orange-400",
		Recommendations: []string{"Gentle flossing daily", "Antimicrobial mouthwash", "Soft-bristled toothbrush"},
	},
	{
		Disease:         "Tooth Discoloration",
		Location:        "Front teeth",
		Severity:        types.SeverityLow,
		Color:           "bg-blue-400",
		Recommendations: []string{"Professional whitening consultation", "Limit staining foods", "Regular dental hygiene"},
	},
}

// Ranges used when generating a finding
const (
	MinAffectedArea  = 15
	AffectedAreaSpan = 25
	MinConfidence    = 75
	ConfidenceSpan   = 20
	MinBoxWidth      = 40
	BoxWidthSpan     = 60
	MinBoxHeight     = 30
	BoxHeightSpan    = 40
	// OriginFraction limits the box origin to the left/top part of the raster
	OriginFraction = 0.6
)

// Synthesizer produces findings from the catalog
type Synthesizer struct {
	rng     Rand
	catalog []Entry
}

// New creates a Synthesizer over the default catalog
func New(rng Rand) *Synthesizer {
	return NewWithCatalog(rng, Catalog)
}

// NewWithCatalog creates a Synthesizer over a custom catalog
func NewWithCatalog(rng Rand, catalog []Entry) *Synthesizer {
	if rng == nil {
		rng = NewLockedRand(rand.Uint64(), rand.Uint64())
	}
	return &Synthesizer{rng: rng, catalog: catalog}
}

// Synthesize returns 1 to len(catalog) findings for a raster of the given size.
// The result is never empty as long as the catalog is not empty.
func (s *Synthesizer) Synthesize(width, height int) []types.DetectedIssue {
	if len(s.catalog) == 0 {
		return nil
	}

	count := s.rng.IntN(len(s.catalog)) + 1
	issues := make([]types.DetectedIssue, 0, count)

	for _, entry := range s.catalog[:count] {
		x := s.rng.Float64() * (float64(width) * OriginFraction)
		y := s.rng.Float64() * (float64(height) * OriginFraction)
		boxWidth := MinBoxWidth + s.rng.Float64()*BoxWidthSpan
		boxHeight := MinBoxHeight + s.rng.Float64()*BoxHeightSpan

		issues = append(issues, types.DetectedIssue{
			Disease:         entry.Disease,
			Location:        entry.Location,
			Severity:        entry.Severity,
			AffectedArea:    round(MinAffectedArea + s.rng.Float64()*AffectedAreaSpan),
			Confidence:      round(MinConfidence + s.rng.Float64()*ConfidenceSpan),
			Recommendations: slices.Clone(entry.Recommendations),
			Color:           entry.Color,
			BoundingBox: &types.BoundingBox{
				X:      round(x),
				Y:      round(y),
				Width:  round(boxWidth),
				Height: round(boxHeight),
			},
		})
	}

	return issues
}

func round(v float64) int {
	return int(math.Round(v))
}

// LockedRand is a PCG-backed Rand safe for concurrent use
type LockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand creates a seeded LockedRand
func NewLockedRand(seed1, seed2 uint64) *LockedRand {
	return &LockedRand{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Float64 implements Rand
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntN implements Rand
func (r *LockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
