package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/dental-analyzer/pkg/types"
)

func issue(sev types.Severity, confidence int) types.DetectedIssue {
	return types.DetectedIssue{Disease: "x", Severity: sev, Confidence: confidence}
}

func TestScoreSingleFinding(t *testing.T) {
	health, err := Score([]types.DetectedIssue{issue(types.SeverityMedium, 85)})
	require.NoError(t, err)

	// 85 * 0.75 = 63.75
	assert.Equal(t, 64, health.Score)
	assert.Equal(t, StatusFair, health.Status)
	assert.Equal(t, CheckupOneToTwo, health.NextCheckup)
}

func TestScoreCompoundsPenalty(t *testing.T) {
	health, err := Score([]types.DetectedIssue{
		issue(types.SeverityMedium, 80),
		issue(types.SeverityLow, 90),
		issue(types.SeverityLow, 94),
	})
	require.NoError(t, err)

	// mean 88 * 0.75 * 0.9 * 0.9 = 53.46
	assert.Equal(t, 53, health.Score)
	assert.Equal(t, StatusFair, health.Status)
}

func TestScoreEmpty(t *testing.T) {
	_, err := Score(nil)
	require.ErrorIs(t, err, ErrNoFindings)
}

func TestScoreAlwaysInRange(t *testing.T) {
	severities := []types.Severity{types.SeverityLow, types.SeverityMedium, types.SeverityHigh}

	for n := 1; n <= 3; n++ {
		for _, sev := range severities {
			for conf := 75; conf <= 95; conf++ {
				issues := make([]types.DetectedIssue, n)
				for i := range issues {
					issues[i] = issue(sev, conf)
				}
				health, err := Score(issues)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, health.Score, 0)
				assert.LessOrEqual(t, health.Score, 100)
			}
		}
	}
}

func TestScoreMonotonicInSeverity(t *testing.T) {
	base := []types.DetectedIssue{
		issue(types.SeverityLow, 90),
		issue(types.SeverityLow, 80),
	}

	for i := range base {
		before, err := Score(base)
		require.NoError(t, err)

		worse := append([]types.DetectedIssue(nil), base...)
		worse[i].Severity = types.SeverityHigh
		after, err := Score(worse)
		require.NoError(t, err)

		assert.Less(t, after.Score, before.Score, "finding %d", i)
	}
}

func TestStatusThresholds(t *testing.T) {
	tests := []struct {
		score   int
		status  string
		checkup string
	}{
		{100, StatusExcellent, CheckupSixMonths},
		{85, StatusExcellent, CheckupSixMonths},
		{84, StatusGood, CheckupThreeToFour},
		{70, StatusGood, CheckupThreeToFour},
		{69, StatusFair, CheckupOneToTwo},
		{50, StatusFair, CheckupOneToTwo},
		{49, StatusNeedsAttention, CheckupOneToTwo},
		{0, StatusNeedsAttention, CheckupOneToTwo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, Status(tt.score), "status for %d", tt.score)
		assert.Equal(t, tt.checkup, NextCheckup(tt.score), "checkup for %d", tt.score)
	}
}

func TestSeverityMultiplier(t *testing.T) {
	assert.Equal(t, 0.5, SeverityMultiplier(types.SeverityHigh))
	assert.Equal(t, 0.75, SeverityMultiplier(types.SeverityMedium))
	assert.Equal(t, 0.9, SeverityMultiplier(types.SeverityLow))
}

func TestScoreUnknownSeverity(t *testing.T) {
	_, err := Score([]types.DetectedIssue{issue(types.SeverityLow, 80), issue("Critical", 80)})
	require.ErrorIs(t, err, ErrUnknownSeverity)
}
