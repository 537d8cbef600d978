// Package engine implements the resource-aware batch execution engine.
//
// The engine drives an injected per-item analyzer across a list of item
// identifiers in waves. Before each wave it samples memory usage and
// sizes the wave from the pressure ratio (memoryUsedMB / memoryLimitMB);
// after each wave it applies the resource threshold policy and the
// selected failure-tolerance strategy.
//
//	eng := engine.New(analyzeFile, tieredCache, &engine.Config{
//	    MaxConcurrency: 8,
//	    MemoryLimitMB:  512,
//	})
//	defer eng.Close()
//
//	report, err := eng.ProcessBatch(ctx, paths, engine.Options{
//	    Strategy: engine.StrategyBestEffort,
//	    Progress: func(done, total int) { log.Printf("%d/%d", done, total) },
//	})
//
// # Failure strategies
//
// StrategyFailFast aborts after the first wave containing any per-item
// error. StrategyCollectAll never aborts. StrategyBestEffort (the
// default) aborts once the running error rate exceeds the configured
// threshold after a minimum number of attempts. Aborts return a
// *types.BatchError carrying all results and errors accumulated so far.
//
// # Resource policy
//
// Pressure bands map to actions evaluated after every wave: below 60%
// the engine only monitors; above 60% it samples more frequently; above
// 80% it hints garbage collection; above 90% it forces collection and
// waits briefly; at 95% it forces collection and, if pressure persists,
// fails the run with a *types.ResourceExhaustedError.
//
// Per-item failures never abort a wave: they become BatchItemError
// records in the report. Cancellation is cooperative, checked between
// waves; in-flight items in the current wave are allowed to finish.
package engine
