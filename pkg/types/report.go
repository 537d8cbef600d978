package types

import "time"

// BatchItemError records the failure of a single item within a batch run
type BatchItemError struct {
	ItemID  string `json:"item_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"` // Underlying error, opaque to the engine
}

// Error implements the error interface
func (e *BatchItemError) Error() string {
	return e.ItemID + ": " + e.Message
}

// Unwrap returns the underlying cause
func (e *BatchItemError) Unwrap() error {
	return e.Cause
}

// BatchSummary aggregates counts and timings for one batch run
type BatchSummary struct {
	TotalItems int           `json:"total_items"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	CacheHits  int           `json:"cache_hits"`
	Waves      int           `json:"waves"`
	Duration   time.Duration `json:"duration"`
}

// BatchItemResult is one successful output of a batch run
type BatchItemResult struct {
	ItemID    string `json:"item_id"`
	Value     []byte `json:"value"`
	FromCache bool   `json:"from_cache"`
}

// BatchReport is the outcome of one ProcessBatch call. It is created once
// per run and immutable after return; ordering of Results and Errors is
// not guaranteed relative to the input order.
type BatchReport struct {
	Results []BatchItemResult `json:"results"`
	Errors  []BatchItemError  `json:"errors"`
	Summary BatchSummary      `json:"summary"`
}

// ResourceSnapshot captures engine resource usage at a point in time
type ResourceSnapshot struct {
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	ActiveWorkers   int     `json:"active_workers"`
	QueuedItems     int     `json:"queued_items"`
	CompletedItems  int     `json:"completed_items"`
	FailedItems     int     `json:"failed_items"`
}
