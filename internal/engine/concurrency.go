package engine

// Memory pressure bands, as ratios of memoryUsedMB / memoryLimitMB.
// Each band maps to a wave concurrency and a post-wave policy action.
const (
	ratioEmergency = 0.95
	ratioCritical  = 0.90
	ratioHigh      = 0.80
	ratioElevated  = 0.70
	ratioModerate  = 0.60
)

// policyAction is the post-wave response to the current memory pressure
type policyAction int

const (
	actionMonitor policyAction = iota
	actionIncreasedSampling
	actionGCHint
	actionForcedGC
	actionFailRun
)

// actionForRatio maps a pressure ratio to the post-wave policy action
func actionForRatio(ratio float64) policyAction {
	switch {
	case ratio >= ratioEmergency:
		return actionFailRun
	case ratio >= ratioCritical:
		return actionForcedGC
	case ratio >= ratioHigh:
		return actionGCHint
	case ratio >= ratioModerate:
		return actionIncreasedSampling
	default:
		return actionMonitor
	}
}

// targetConcurrency maps a pressure ratio to the next wave's concurrency
// as a fraction of maxConcurrency. Concurrency is non-increasing in
// memory pressure and always at least 1.
func targetConcurrency(ratio float64, maxConcurrency int) int {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	var target int
	switch {
	case ratio >= ratioEmergency:
		target = 1
	case ratio >= ratioCritical:
		target = fraction(maxConcurrency, 0.25, 1)
	case ratio >= ratioHigh:
		target = fraction(maxConcurrency, 0.50, 1)
	case ratio >= ratioElevated:
		target = fraction(maxConcurrency, 0.70, 2)
	case ratio >= ratioModerate:
		target = fraction(maxConcurrency, 0.85, 2)
	default:
		target = maxConcurrency
	}

	if target > maxConcurrency {
		target = maxConcurrency
	}
	if target < 1 {
		target = 1
	}
	return target
}

// fraction floors max*f and applies a band minimum, clamped to max so a
// small maxConcurrency never produces a higher target under more pressure
func fraction(max int, f float64, min int) int {
	target := int(float64(max) * f)
	if target < min {
		target = min
	}
	if target > max {
		target = max
	}
	return target
}
