// Package progress keeps per-queue job counters (queued, running, done,
// failed) for the scheduler. Counters are updated with signed deltas and can
// be observed through an onChange callback.
package progress
