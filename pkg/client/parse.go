package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/dental-analyzer/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseClassification parses a model reply into a ClassificationResult.
// Replies that are not valid JSON yield a low-confidence "unclassified" result.
func ParseClassification(raw string) *types.ClassificationResult {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return fallback("Model returned non-JSON response")
	}

	var result types.ClassificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallback("Failed to parse model response")
	}

	labels := result.Labels[:0]
	for _, l := range result.Labels {
		l.Label = strings.ToLower(strings.TrimSpace(l.Label))
		if l.Label == "" {
			continue
		}
		l.Score = clamp(l.Score, 0, 1)
		labels = append(labels, l)
	}
	result.Labels = labels
	if len(result.Labels) == 0 {
		return fallback(result.Description)
	}

	return &result
}

func fallback(description string) *types.ClassificationResult {
	return &types.ClassificationResult{
		Labels:      []types.Classification{{Label: "unclassified", Score: 0.1}},
		Description: description,
	}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
