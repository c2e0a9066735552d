// Error-rate gate: per-file acceptance policy.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ingest

const normalErrRate = 0.01

// acceptable implements spec.md §4.7: errors/processed < NORMAL_ERR_RATE,
// with processed == 0 vacuously accepted (no writes were ever attempted).
// The verdict is observability only - per SPEC_FULL.md's Open Question 1
// resolution, the supervisor renames the file regardless of the result.
func acceptable(processed, errs int) bool {
	if processed == 0 {
		return true
	}
	return float64(errs)/float64(processed) < normalErrRate
}
