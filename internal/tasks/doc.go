// package tasks implements the scheduled extract-transform-load pipeline
// for Spotify listening data.
//
// The core abstraction is ETLEngine, which drives one run through a strict
// stage sequence (extract, transform, load, quality check) and produces a
// RunSummary for every run regardless of outcome. Stages hand their output
// directly to the next stage as typed values; there is no shared mutable
// state between them. Scheduler fires the engine once per day at a
// configured wall-clock time; ticks that land while a run is active are
// skipped, not queued.
package tasks
