// Package scheduler triggers the deal cycle on a cron or interval schedule.
//
// Overlapping triggers are skipped while a run is still in progress, and
// Stop waits for that run to finish (bounded by the caller's context).
package scheduler
