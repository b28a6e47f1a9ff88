package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/dental-analyzer/pkg/types"
)

var (
	// ErrNoFindings is returned when scoring an empty finding set
	ErrNoFindings = errors.New("no findings to score")
	// ErrUnknownSeverity is returned for a finding graded outside Low/Medium/High
	ErrUnknownSeverity = errors.New("unknown severity")
)

// Status labels
const (
	StatusExcellent      = "Excellent"
	StatusGood           = "Good"
	StatusFair           = "Fair"
	StatusNeedsAttention = "Needs Attention"
)

// Checkup intervals
const (
	CheckupSixMonths   = "6 months"
	CheckupThreeToFour = "3-4 months"
	CheckupOneToTwo    = "1-2 months"
)

// SeverityMultiplier returns the penalty factor applied per finding
func SeverityMultiplier(s types.Severity) float64 {
	switch s {
	case types.SeverityHigh:
		return 0.5
	case types.SeverityMedium:
		return 0.75
	default:
		return 0.9
	}
}

// Score aggregates findings into an overall health summary.
//
// The score is the mean confidence times the product of every finding's
// severity multiplier, rounded and clamped to [0,100].
func Score(issues []types.DetectedIssue) (types.OverallHealth, error) {
	if len(issues) == 0 {
		return types.OverallHealth{}, ErrNoFindings
	}

	sum := 0.0
	penalty := 1.0
	for _, issue := range issues {
		if !issue.Severity.Valid() {
			return types.OverallHealth{}, fmt.Errorf("%w: %q (%s)", ErrUnknownSeverity, issue.Severity, issue.Disease)
		}
		sum += float64(issue.Confidence)
		penalty *= SeverityMultiplier(issue.Severity)
	}
	avgConfidence := sum / float64(len(issues))

	score := int(math.Round(avgConfidence * penalty))
	score = max(0, min(100, score))

	return types.OverallHealth{
		Score:       score,
		Status:      Status(score),
		NextCheckup: NextCheckup(score),
	}, nil
}

// Status maps a score to its label
func Status(score int) string {
	switch {
	case score >= 85:
		return StatusExcellent
	case score >= 70:
		return StatusGood
	case score >= 50:
		return StatusFair
	default:
		return StatusNeedsAttention
	}
}

// NextCheckup maps a score to a recommended checkup interval
func NextCheckup(score int) string {
	switch {
	case score >= 85:
		return CheckupSixMonths
	case score >= 70:
		return CheckupThreeToFour
	default:
		return CheckupOneToTwo
	}
}
