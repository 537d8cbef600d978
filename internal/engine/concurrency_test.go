package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetConcurrency_Bands(t *testing.T) {
	const max = 100

	tests := []struct {
		name  string
		ratio float64
		want  int
	}{
		{"no pressure", 0.10, 100},
		{"just under moderate", 0.59, 100},
		{"moderate", 0.60, 85},
		{"elevated", 0.70, 70},
		{"high", 0.80, 50},
		{"critical", 0.90, 25},
		{"emergency", 0.95, 1},
		{"over the limit", 1.20, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targetConcurrency(tt.ratio, max))
		})
	}
}

func TestTargetConcurrency_NonIncreasingInPressure(t *testing.T) {
	for _, max := range []int{1, 2, 3, 4, 8, 16, 100} {
		prev := max + 1
		for ratio := 0.0; ratio <= 1.5; ratio += 0.01 {
			got := targetConcurrency(ratio, max)
			assert.LessOrEqual(t, got, prev,
				"concurrency must not increase with pressure (max=%d ratio=%.2f)", max, ratio)
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, max)
			prev = got
		}
	}
}

func TestTargetConcurrency_SmallMax(t *testing.T) {
	// Band minimums must not push the target above max
	assert.Equal(t, 1, targetConcurrency(0.65, 1))
	assert.Equal(t, 2, targetConcurrency(0.75, 2))
	assert.Equal(t, 1, targetConcurrency(0.96, 2))
}

func TestTargetConcurrency_ZeroMax(t *testing.T) {
	assert.Equal(t, 1, targetConcurrency(0.0, 0))
}

func TestActionForRatio(t *testing.T) {
	assert.Equal(t, actionMonitor, actionForRatio(0.30))
	assert.Equal(t, actionIncreasedSampling, actionForRatio(0.65))
	assert.Equal(t, actionIncreasedSampling, actionForRatio(0.75))
	assert.Equal(t, actionGCHint, actionForRatio(0.85))
	assert.Equal(t, actionForcedGC, actionForRatio(0.92))
	assert.Equal(t, actionFailRun, actionForRatio(0.95))
	assert.Equal(t, actionFailRun, actionForRatio(1.10))
}
