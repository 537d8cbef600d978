// Package types provides shared type definitions for depscan.
//
// This package defines domain types used across multiple components,
// including symbols, file analyses, batch reports, and batch error kinds.
//
// # Core Types
//
// Symbol represents a Go language construct (function, method, type, etc.)
// extracted from source code via AST parsing:
//
//	symbol := &types.Symbol{
//	    Name:      "ParseFile",
//	    Kind:      types.KindFunction,
//	    Package:   "analyzer",
//	    Signature: "func ParseFile(path string) (*FileAnalysis, error)",
//	}
//
// FileAnalysis is the serializable output of analyzing one source file:
// its package name, imports, symbols, and any parse errors.
//
// # Batch Reports
//
// BatchReport is the outcome of one engine run. Results and Errors are
// unordered relative to the input; Summary carries counts and timings:
//
//	report, err := eng.ProcessBatch(ctx, files, opts)
//	fmt.Printf("%d ok, %d failed in %v\n",
//	    report.Summary.Succeeded, report.Summary.Failed, report.Summary.Duration)
//
// # Error Kinds
//
// Callers branch on error kind to decide whether partial results are usable:
//
//	var batchErr *types.BatchError
//	if errors.As(err, &batchErr) {
//	    use(batchErr.Results) // partial results survive an abort
//	}
//
//	var exhausted *types.ResourceExhaustedError
//	if errors.As(err, &exhausted) {
//	    log.Printf("over limit: %.0fMB", exhausted.MemoryUsedMB)
//	}
package types
