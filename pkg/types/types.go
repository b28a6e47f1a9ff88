package types

import "time"

// Severity grades a detected issue
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// BoundingBox is a region in normalized-raster pixel coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectedIssue is one finding reported for an analyzed image
type DetectedIssue struct {
	Disease         string       `json:"disease"`
	Location        string       `json:"location"`
	Severity        Severity     `json:"severity"`
	AffectedArea    int          `json:"affectedArea"`
	Confidence      int          `json:"confidence"`
	Recommendations []string     `json:"recommendations"`
	Color           string       `json:"color"`
	BoundingBox     *BoundingBox `json:"boundingBox,omitempty"`
}

// OverallHealth summarizes all findings of an analysis
type OverallHealth struct {
	Score       int    `json:"score"`
	Status      string `json:"status"`
	NextCheckup string `json:"nextCheckup"`
}

// AnalysisResult is the payload returned for every analysis
type AnalysisResult struct {
	Issues            []DetectedIssue `json:"issues"`
	OverallHealth     OverallHealth   `json:"overallHealth"`
	ProcessedImageURL string          `json:"processedImageUrl"`
}

// Report wraps a result with the metadata a results view displays
type Report struct {
	ID           string         `json:"id"`
	FileName     string         `json:"fileName"`
	AnalysisDate time.Time      `json:"analysisDate"`
	ImageData    string         `json:"imageData"`
	Result       AnalysisResult `json:"analysisResult"`
}

// Classification is one label/score pair returned by a vision backend
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassificationResult is the categorical output of a model probe
type ClassificationResult struct {
	Labels      []Classification `json:"labels"`
	Description string           `json:"description"`
}

// Top returns the highest scoring label, or false when there are none
func (r *ClassificationResult) Top() (Classification, bool) {
	if r == nil || len(r.Labels) == 0 {
		return Classification{}, false
	}
	best := r.Labels[0]
	for _, l := range r.Labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	return best, true
}
